package domain

import (
	"errors"
	"fmt"
	"time"
)

// Error codes for the engine failure taxonomy.
const (
	ErrCodeUnknownSymptom      = "UNKNOWN_SYMPTOM_CODE"
	ErrCodeDegradedRiskProfile = "DEGRADED_RISK_PROFILE"
	ErrCodeKnowledgeBase       = "KNOWLEDGE_BASE_UNAVAILABLE"
	ErrCodeSessionExpired      = "SESSION_EXPIRED"
	ErrCodeSessionTerminal     = "SESSION_ALREADY_TERMINAL"
	ErrCodeSessionNotFound     = "SESSION_NOT_FOUND"
	ErrCodeInvalidInput        = "INVALID_INPUT"
	ErrCodeStore               = "STORE_ERROR"
	ErrCodeInternal            = "INTERNAL_ERROR"
)

// Sentinel errors for errors.Is checks across package boundaries.
var (
	ErrUnknownSymptomCode       = errors.New("unknown symptom code")
	ErrKnowledgeBaseUnavailable = errors.New("knowledge base unavailable")
	ErrSessionExpired           = errors.New("session expired")
	ErrSessionAlreadyTerminal   = errors.New("session already terminal")
	ErrSessionNotFound          = errors.New("session not found")
)

// EngineError is a standardized error carrying the taxonomy code alongside
// the message, suitable for API responses and audit logs.
type EngineError struct {
	Code      string    `json:"code"`
	Message   string    `json:"message"`
	Details   string    `json:"details,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id,omitempty"`

	wrapped error
}

// Error implements the error interface.
func (e *EngineError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the sentinel for errors.Is.
func (e *EngineError) Unwrap() error {
	return e.wrapped
}

// NewEngineError creates a new EngineError with timestamp.
func NewEngineError(code, message, details string) *EngineError {
	return &EngineError{
		Code:      code,
		Message:   message,
		Details:   details,
		Timestamp: time.Now().UTC(),
		wrapped:   sentinelFor(code),
	}
}

// sentinelFor maps taxonomy codes to their sentinel errors.
func sentinelFor(code string) error {
	switch code {
	case ErrCodeUnknownSymptom:
		return ErrUnknownSymptomCode
	case ErrCodeKnowledgeBase:
		return ErrKnowledgeBaseUnavailable
	case ErrCodeSessionExpired:
		return ErrSessionExpired
	case ErrCodeSessionTerminal:
		return ErrSessionAlreadyTerminal
	case ErrCodeSessionNotFound:
		return ErrSessionNotFound
	default:
		return nil
	}
}

// NewUnknownSymptomError reports a response citing a symptom code absent
// from the knowledge base. The failed response leaves the session untouched
// and the caller may retry with valid input.
func NewUnknownSymptomError(code string) *EngineError {
	return NewEngineError(ErrCodeUnknownSymptom,
		fmt.Sprintf("symptom code %q is not in the knowledge base", code), "")
}

// DegradedRiskWarning describes a risk dimension that could not be derived
// from the patient context. Scoring proceeds with zero weight for the
// missing dimension; the warning is surfaced on the final report.
type DegradedRiskWarning struct {
	Dimension RiskFactorKind `json:"dimension"`
	Reason    string         `json:"reason"`
}

// String renders the warning for report inclusion.
func (w DegradedRiskWarning) String() string {
	return fmt.Sprintf("degraded risk profile: %s (%s)", w.Dimension, w.Reason)
}
