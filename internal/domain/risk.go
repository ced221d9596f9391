package domain

import "time"

// ComplianceCheck is the audit record of one compliance rule evaluation.
type ComplianceCheck struct {
	Rule      string
	Passed    bool
	Detail    string
	CheckedAt time.Time
}

// RiskDecision is the outcome of a risk gate validation: approved when
// the violation list is empty. Ephemeral, never persisted.
type RiskDecision struct {
	Approved   bool
	Violations []string
	Checks     []ComplianceCheck
}
