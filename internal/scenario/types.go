package scenario

// Case is one permission check within a scenario.
type Case struct {
	Operation string `yaml:"operation"`
	Domain    string `yaml:"domain,omitempty"`
	Scheme    string `yaml:"scheme,omitempty"`
	Risk      *int   `yaml:"risk,omitempty"`
	Expect    string `yaml:"expect"`
	Rule      string `yaml:"rule,omitempty"`
}

// Scenario is a named collection of permission test cases.
type Scenario struct {
	Name   string `yaml:"name"`
	Policy string `yaml:"policy,omitempty"`
	Cases  []Case `yaml:"cases"`
}

// CaseResult is the outcome of evaluating one test case.
type CaseResult struct {
	Index     int    `json:"index"`
	Passed    bool   `json:"passed"`
	Operation string `json:"operation"`
	Domain    string `json:"domain,omitempty"`
	Expected  string `json:"expected"`
	Actual    string `json:"actual"`
	Rule      string `json:"rule"`
	Reason    string `json:"reason"`
}

// RunResult is the outcome of running all cases in one scenario file.
type RunResult struct {
	File   string       `json:"file"`
	Name   string       `json:"name"`
	Total  int          `json:"total"`
	Passed int          `json:"passed"`
	Failed int          `json:"failed"`
	Cases  []CaseResult `json:"cases"`
}
