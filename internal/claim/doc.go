// Package claim provides the business boundary for Arbiter's claims triage
// system. It defines the Service (lifecycle state machine, decision audit),
// the Validate and AssessRisk pure functions, the Store interface
// (persistence), and the domain models.
package claim
