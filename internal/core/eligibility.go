package core

type Status string

const (
	StatusAccepted Status = "Accepted"
	StatusDenied   Status = "Denied"
)

type Decision struct {
	Status     Status
	Reason     string
	Violations []string
}

func (d Decision) Accepted() bool {
	return d.Status == StatusAccepted
}

// CheckEligibility compiles the promo code on every call, so the decision
// always reflects its current restrictions.
func CheckEligibility(promo PromoCode, context Context) Decision {
	verdict := Evaluate(Compile(promo.Restrictions), context)
	if verdict.Passed() {
		return Decision{Status: StatusAccepted}
	}

	return Decision{
		Status:     StatusDenied,
		Reason:     verdict.Reason(),
		Violations: verdict.Violations,
	}
}
