package screen

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// Style fragments that make an element effectively invisible. Element-level
// concealment (display, visibility, geometry, positioning) is reported as
// hidden_element; near-zero font size or opacity is invisible_text.
var (
	hiddenStyleRe = regexp.MustCompile(`(?i)display\s*:\s*none|visibility\s*:\s*hidden|` +
		`(width|height)\s*:\s*0(px|%)?\s*(;|$)|(left|top)\s*:\s*-\d{3,}`)
	invisibleStyleRe = regexp.MustCompile(`(?i)font-size\s*:\s*0(\.\d+)?(px|pt|em|rem)?\s*(;|$)|` +
		`opacity\s*:\s*0(\.0\d*)?\s*(;|$)`)
)

// scanMarkup parses text as HTML and flags elements styled to be invisible
// to a human reader. Non-markup text and unparseable markup produce no
// findings: this pass fails open rather than blocking legitimate output.
func (s *Screener) scanMarkup(text string) []Finding {
	if !strings.Contains(text, "<") || !strings.Contains(text, ">") {
		return nil
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(text))
	if err != nil {
		return nil
	}

	var findings []Finding
	doc.Find("[style], [hidden], [width], [height]").Each(func(_ int, sel *goquery.Selection) {
		kind, ok := classifyConcealment(sel)
		if !ok {
			return
		}

		start, end, ok := locateElement(text, sel)
		if !ok {
			return
		}

		findings = append(findings, Finding{
			Kind:    kind,
			Start:   start,
			End:     end,
			Excerpt: excerpt(strings.TrimSpace(sel.Text())),
		})
	})
	return findings
}

func classifyConcealment(sel *goquery.Selection) (Kind, bool) {
	if style, ok := sel.Attr("style"); ok {
		if hiddenStyleRe.MatchString(style) {
			return KindHiddenElement, true
		}
		if invisibleStyleRe.MatchString(style) {
			return KindInvisibleText, true
		}
	}
	if _, ok := sel.Attr("hidden"); ok {
		return KindHiddenElement, true
	}
	w, hasW := sel.Attr("width")
	h, hasH := sel.Attr("height")
	if (hasW && isZeroDimension(w)) || (hasH && isZeroDimension(h)) {
		return KindHiddenElement, true
	}
	return "", false
}

func isZeroDimension(v string) bool {
	v = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(v), "px"))
	return v == "0"
}

// locateElement maps a parsed element back to its byte span in the raw
// text. Serialized HTML does not always match the input byte-for-byte
// (void elements, attribute normalization), so when the rendered form is
// not found we look for an opening tag of the same name whose raw text
// carries the element's attribute values, and extend through the matching
// close tag when one exists.
func locateElement(text string, sel *goquery.Selection) (int, int, bool) {
	if outer, err := goquery.OuterHtml(sel); err == nil {
		if idx := strings.Index(text, outer); idx >= 0 {
			return idx, idx + len(outer), true
		}
	}

	if len(sel.Nodes) == 0 {
		return 0, 0, false
	}
	node := sel.Nodes[0]

	offset := 0
	for {
		rest := text[offset:]
		i := strings.Index(rest, "<"+node.Data)
		if i < 0 {
			return 0, 0, false
		}
		j := strings.Index(rest[i:], ">")
		if j < 0 {
			return 0, 0, false
		}
		tagText := rest[i : i+j+1]
		if tagCarriesAttrs(tagText, node.Attr) {
			start := offset + i
			end := offset + i + j + 1
			closeTag := "</" + node.Data + ">"
			if k := strings.Index(text[end:], closeTag); k >= 0 {
				end += k + len(closeTag)
			}
			return start, end, true
		}
		offset += i + j + 1
	}
}

func tagCarriesAttrs(tagText string, attrs []html.Attribute) bool {
	for _, a := range attrs {
		if a.Val != "" && !strings.Contains(tagText, a.Val) {
			return false
		}
	}
	return true
}
