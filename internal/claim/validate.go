package claim

import "strings"

// requiredFields is the fixed set a claim must carry before triage can run,
// in the order they are reported back to the claimant.
var requiredFields = []string{
	"policy_number",
	"claim_type",
	"claim_amount",
	"incident_date",
	"description",
}

// Validate returns the names of required fields that are missing from the
// claim. A textual field is missing when it is empty or whitespace-only;
// claim_amount is a value type and is never missing (zero is a legal
// amount), and incident_date is missing only when unset. Total function,
// no side effects.
func Validate(c *Claim) []string {
	var missing []string
	for _, f := range requiredFields {
		switch f {
		case "policy_number":
			if strings.TrimSpace(c.PolicyNumber) == "" {
				missing = append(missing, f)
			}
		case "claim_type":
			if strings.TrimSpace(string(c.ClaimType)) == "" {
				missing = append(missing, f)
			}
		case "claim_amount":
			// always present on the struct; 0.0 is a value, not an absence
		case "incident_date":
			if c.IncidentDate == nil || c.IncidentDate.IsZero() {
				missing = append(missing, f)
			}
		case "description":
			if strings.TrimSpace(c.Description) == "" {
				missing = append(missing, f)
			}
		}
	}
	return missing
}
