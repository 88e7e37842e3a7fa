package eligibility

import "jansahay/internal/domain"

// Filter returns the schemes user is eligible for, in catalog order.
func (e *Evaluator) Filter(schemes []domain.SchemeRecord, user domain.UserProfile) []domain.SchemeRecord {
	var out []domain.SchemeRecord
	for _, s := range schemes {
		if e.IsEligible(user, s) {
			out = append(out, s)
		}
	}
	return out
}

// Filter applies the default evaluator.
func Filter(schemes []domain.SchemeRecord, user domain.UserProfile) []domain.SchemeRecord {
	ev, err := defaultEvaluator()
	if err != nil {
		return nil
	}
	return ev.Filter(schemes, user)
}

// Decision is the outcome of evaluating one scheme.
type Decision struct {
	Scheme domain.SchemeRecord
	Reason Reason
}

// Eligible reports whether the scheme was accepted.
func (d Decision) Eligible() bool { return d.Reason == Accepted }

// Explain evaluates every scheme and keeps the rejecting rule for each.
func (e *Evaluator) Explain(schemes []domain.SchemeRecord, user domain.UserProfile) []Decision {
	out := make([]Decision, 0, len(schemes))
	for _, s := range schemes {
		out = append(out, Decision{Scheme: s, Reason: e.Check(user, s)})
	}
	return out
}
