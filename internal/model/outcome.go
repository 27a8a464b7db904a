package model

// Decision indicates how a candidate pair was classified.
type Decision string

// Decision state constants.
const (
	// DecisionNotApproved is the hard veto for market/language mismatches.
	DecisionNotApproved Decision = "not_approved"
	// DecisionAutoNotApproved rejects pairs whose overall score is too low.
	DecisionAutoNotApproved Decision = "auto_not_approved"
	// DecisionAutoApproved accepts pairs clearing every threshold.
	DecisionAutoApproved Decision = "auto_approved"
	// DecisionPending marks the gray band eligible for escalation.
	DecisionPending Decision = "pending"
	// DecisionAIApproved marks results approved via a maximum-confidence
	// oracle suggestion rather than the deterministic classifier.
	DecisionAIApproved Decision = "ai_approved"
)

// PairOutcome is the result of evaluating one (query, candidate) pair.
// It is a pure function of the two records and the thresholds; Overall may be
// negative after the numeric mismatch penalty and is classified raw.
type PairOutcome struct {
	Decision     Decision
	Reason       string
	VendorScore  int
	ProductScore int
	Overall      int
	Exact        bool
}
