package authz

// Decision is the outcome of evaluating a feature for an (actor, target)
// pair. Exactly one Decision is produced per evaluation.
type Decision int

const (
	// NotApplicable means the feature does not hold for this pair. The
	// boundary reports it the same as a missing grant.
	NotApplicable Decision = iota
	Granted
	Denied
	// EvaluationFailed means the evaluator faulted. Never silently
	// swallowed: the boundary reports it as an internal error.
	EvaluationFailed
)

func (d Decision) String() string {
	switch d {
	case Granted:
		return "granted"
	case Denied:
		return "denied"
	case EvaluationFailed:
		return "evaluation_failed"
	default:
		return "not_applicable"
	}
}
