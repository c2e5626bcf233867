package scenario

import (
	"encoding/json"
	"fmt"
	"strings"
)

// FormatText renders run results as a human-readable report: one line per
// scenario, failing cases indented beneath it, totals at the end.
func FormatText(results []*RunResult) string {
	var b strings.Builder

	cases, passed, failing := 0, 0, 0
	for _, r := range results {
		cases += r.Total
		passed += r.Passed

		status := "pass"
		if r.Failed > 0 {
			status = "FAIL"
			failing++
		}
		fmt.Fprintf(&b, "%s %s: %d/%d cases\n", status, r.Name, r.Passed, r.Total)

		for _, c := range r.Cases {
			if c.Passed {
				continue
			}
			where := c.Operation
			if c.Domain != "" {
				where += " @ " + c.Domain
			}
			fmt.Fprintf(&b, "  case %d (%s): expected %s, got %s", c.Index, where, c.Expected, c.Actual)
			if c.Rule != "" {
				fmt.Fprintf(&b, " (%s)", c.Rule)
			}
			b.WriteString("\n")
		}
	}

	fmt.Fprintf(&b, "\n%d/%d cases passed across %d file(s)", passed, cases, len(results))
	if failing > 0 {
		fmt.Fprintf(&b, "; %d scenario(s) failing", failing)
	}
	b.WriteString("\n")

	return b.String()
}

// FormatJSON renders run results as JSON.
func FormatJSON(results []*RunResult) (string, error) {
	data, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal results: %w", err)
	}
	return string(data), nil
}
