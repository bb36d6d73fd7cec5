package domain

// Criterion is a CEL boolean expression that a network must satisfy to be
// reported as actionable.
type Criterion struct {
	ID          string `json:"id" yaml:"id"`
	Description string `json:"description" yaml:"description"`

	// CEL expression over the network variables; must return bool.
	Expression string `json:"expression" yaml:"expression"`

	// Reason recorded on the network when the expression is false.
	Reason string `json:"reason" yaml:"reason"`
}

// CriterionResult is the outcome of one criterion against one network.
type CriterionResult struct {
	CriterionID string `json:"criterion_id"`
	Outcome     string `json:"outcome"`
	Reason      string `json:"reason,omitempty"`
}

// Criterion outcomes
const (
	OutcomePass  = ".pass"
	OutcomeFail  = ".fail"
	OutcomeError = ".err"
)

// Passed reports whether the criterion held.
func (r CriterionResult) Passed() bool {
	return r.Outcome == OutcomePass
}
