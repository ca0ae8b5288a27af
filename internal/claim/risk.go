package claim

// Risk is the triage tier assigned to a claim before any human sees it.
type Risk string

const (
	RiskLow    Risk = "LOW"
	RiskMedium Risk = "MEDIUM"
	RiskHigh   Risk = "HIGH"
)

// Canonical risk thresholds. These are the single source of truth; no call
// site may carry its own copy.
const (
	HighAmountThreshold   = 500_000.0
	MediumAmountThreshold = 50_000.0
	HighFraudThreshold    = 0.7
	MediumFraudThreshold  = 0.4
)

// AssessRisk maps a claim amount and fraud score to a risk tier. Evaluated
// in priority order, first match wins; all comparisons are strict, so a
// value sitting exactly on a threshold does not cross it. Total function,
// no side effects.
func AssessRisk(amount, fraudScore float64) Risk {
	switch {
	case amount > HighAmountThreshold || fraudScore > HighFraudThreshold:
		return RiskHigh
	case amount > MediumAmountThreshold || fraudScore > MediumFraudThreshold:
		return RiskMedium
	default:
		return RiskLow
	}
}
