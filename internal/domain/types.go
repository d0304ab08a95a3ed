// Package domain contains the core business entities and types for the
// adaptive disorder prediction engine: symptom evidence, risk factors,
// candidate disorders, session phases and urgency tiers.
//
// The engine produces informational rankings only, never a diagnosis.
package domain

import (
	"errors"
)

// Phase represents one stage of the progressive narrowing pipeline.
// Phases only ever move forward; there is no transition backward.
type Phase string

const (
	SCREENING Phase = "SCREENING"
	NARROW_10 Phase = "NARROW_10"
	NARROW_5  Phase = "NARROW_5"
	NARROW_3  Phase = "NARROW_3"
	FINAL     Phase = "FINAL"
)

// SessionStatus represents the lifecycle status of an analysis session.
type SessionStatus string

const (
	ACTIVE    SessionStatus = "ACTIVE"
	COMPLETED SessionStatus = "COMPLETED"
	ABANDONED SessionStatus = "ABANDONED"
)

// UrgencyClass represents the action tier attached to a prediction.
type UrgencyClass string

const (
	EMERGENCY  UrgencyClass = "EMERGENCY"
	URGENT     UrgencyClass = "URGENT"
	ROUTINE    UrgencyClass = "ROUTINE"
	MONITORING UrgencyClass = "MONITORING"
)

// Severity qualifies how strongly a reported symptom presents.
type Severity string

const (
	MILD     Severity = "MILD"
	MODERATE Severity = "MODERATE"
	SEVERE   Severity = "SEVERE"
)

// Onset qualifies how a reported symptom began.
type Onset string

const (
	SUDDEN  Onset = "SUDDEN"
	GRADUAL Onset = "GRADUAL"
	CHRONIC Onset = "CHRONIC"
	UNKNOWN Onset = "UNKNOWN"
)

// RiskFactorKind represents the dimension a risk factor was derived from.
type RiskFactorKind string

const (
	AGE_BRACKET      RiskFactorKind = "AGE_BRACKET"
	SEX              RiskFactorKind = "SEX"
	FAMILY_HISTORY   RiskFactorKind = "FAMILY_HISTORY"
	PERSONAL_HISTORY RiskFactorKind = "PERSONAL_HISTORY"
)

// Validation errors for session and evidence integrity.
var (
	ErrNotFound        = errors.New("not found")
	ErrInvalidPhase    = errors.New("invalid session phase")
	ErrInvalidStatus   = errors.New("invalid session status")
	ErrInvalidUrgency  = errors.New("invalid urgency class")
	ErrInvalidSeverity = errors.New("invalid symptom severity")
	ErrInvalidOnset    = errors.New("invalid onset qualifier")
)

// phaseOrder defines the forward-only progression of the narrowing pipeline.
var phaseOrder = map[Phase]Phase{
	SCREENING: NARROW_10,
	NARROW_10: NARROW_5,
	NARROW_5:  NARROW_3,
	NARROW_3:  FINAL,
}

// phaseRank is used to enforce monotonic transitions.
var phaseRank = map[Phase]int{
	SCREENING: 0,
	NARROW_10: 1,
	NARROW_5:  2,
	NARROW_3:  3,
	FINAL:     4,
}

// IsValid validates the phase value.
func (p Phase) IsValid() bool {
	_, ok := phaseRank[p]
	return ok
}

// String returns the string representation of the phase.
func (p Phase) String() string {
	return string(p)
}

// Next returns the successor phase. ok is false for FINAL and invalid phases.
func (p Phase) Next() (Phase, bool) {
	next, ok := phaseOrder[p]
	return next, ok
}

// Rank returns the position of the phase in the pipeline, FINAL being highest.
func (p Phase) Rank() int {
	return phaseRank[p]
}

// IsValid validates the session status.
func (s SessionStatus) IsValid() bool {
	switch s {
	case ACTIVE, COMPLETED, ABANDONED:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether the status accepts no further mutations.
func (s SessionStatus) IsTerminal() bool {
	return s == COMPLETED || s == ABANDONED
}

// String returns the string representation of the status.
func (s SessionStatus) String() string {
	return string(s)
}

// urgencyPrecedence orders tiers from most to least pressing.
var urgencyPrecedence = map[UrgencyClass]int{
	EMERGENCY:  3,
	URGENT:     2,
	ROUTINE:    1,
	MONITORING: 0,
}

// IsValid validates the urgency class.
func (u UrgencyClass) IsValid() bool {
	_, ok := urgencyPrecedence[u]
	return ok
}

// String returns the string representation of the urgency class.
func (u UrgencyClass) String() string {
	return string(u)
}

// Precedence returns the ordering rank of the tier; higher is more pressing.
func (u UrgencyClass) Precedence() int {
	return urgencyPrecedence[u]
}

// Outranks reports whether u takes priority over other.
func (u UrgencyClass) Outranks(other UrgencyClass) bool {
	return urgencyPrecedence[u] > urgencyPrecedence[other]
}

// RecommendedAction maps the urgency tier to the fixed recommendation
// vocabulary surfaced on reports.
func (u UrgencyClass) RecommendedAction() string {
	switch u {
	case EMERGENCY:
		return "seek immediate emergency care"
	case URGENT:
		return "same-day provider appointment"
	case ROUTINE:
		return "discuss at next visit"
	default:
		return "monitor and reassess"
	}
}

// IsValid validates the severity qualifier.
func (s Severity) IsValid() bool {
	switch s {
	case MILD, MODERATE, SEVERE:
		return true
	default:
		return false
	}
}

// IsValid validates the onset qualifier.
func (o Onset) IsValid() bool {
	switch o {
	case SUDDEN, GRADUAL, CHRONIC, UNKNOWN:
		return true
	default:
		return false
	}
}

// IsValid validates the risk factor kind.
func (k RiskFactorKind) IsValid() bool {
	switch k {
	case AGE_BRACKET, SEX, FAMILY_HISTORY, PERSONAL_HISTORY:
		return true
	default:
		return false
	}
}
