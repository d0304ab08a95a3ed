// Package engine implements the adaptive narrowing pipeline: evidence
// accumulation, candidate scoring, question selection, phase transitions
// and urgency classification.
package engine

import (
	"fmt"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/apdpe/prediction-engine/internal/domain"
	"github.com/apdpe/prediction-engine/internal/knowledge"
)

// EvidenceModel accumulates and exposes the evidence available to scoring.
type EvidenceModel struct {
	logger *logrus.Logger
	kb     *knowledge.Provider
}

// NewEvidenceModel creates a new evidence model bound to a knowledge base.
func NewEvidenceModel(logger *logrus.Logger, kb *knowledge.Provider) *EvidenceModel {
	return &EvidenceModel{logger: logger, kb: kb}
}

// ValidateResponse checks every symptom code and qualifier of a response
// against the knowledge base without touching any session state.
func (m *EvidenceModel) ValidateResponse(response domain.Response) error {
	for _, item := range response.Items {
		if !m.kb.HasSymptom(item.SymptomCode) {
			return domain.NewUnknownSymptomError(item.SymptomCode)
		}
		if item.Severity != "" && !item.Severity.IsValid() {
			return domain.NewEngineError(domain.ErrCodeInvalidInput,
				fmt.Sprintf("invalid severity %q for symptom %s", item.Severity, item.SymptomCode), "")
		}
		if item.Onset != "" && !item.Onset.IsValid() {
			return domain.NewEngineError(domain.ErrCodeInvalidInput,
				fmt.Sprintf("invalid onset %q for symptom %s", item.Onset, item.SymptomCode), "")
		}
	}
	return nil
}

// RecordResponse parses a structured response into symptom evidence entries
// and appends them to the session evidence log. The response is validated
// first, so a rejected response leaves the session completely untouched.
func (m *EvidenceModel) RecordResponse(session *domain.Session, response domain.Response) ([]domain.SymptomEvidence, error) {
	if err := m.ValidateResponse(response); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	recorded := make([]domain.SymptomEvidence, 0, len(response.Items))
	for _, item := range response.Items {
		onset := item.Onset
		if onset == "" {
			onset = domain.UNKNOWN
		}
		ev := domain.SymptomEvidence{
			SymptomCode: item.SymptomCode,
			Present:     item.Present,
			Severity:    item.Severity,
			Onset:       onset,
			QuestionID:  response.QuestionID,
			RecordedAt:  now,
		}
		session.EvidenceLog = append(session.EvidenceLog, ev)
		recorded = append(recorded, ev)
	}

	response.AnsweredAt = now
	session.Responses = append(session.Responses, response)

	m.logger.WithFields(logrus.Fields{
		"session_id":  session.ID,
		"question_id": response.QuestionID,
		"entries":     len(recorded),
	}).Debug("Recorded symptom evidence")

	return recorded, nil
}

// CurrentEvidence projects the evidence log into its effective state: the
// most recent entry per symptom code wins. The projection is side-effect
// free and fully re-derivable from the log.
func CurrentEvidence(session *domain.Session) map[string]domain.SymptomEvidence {
	current := make(map[string]domain.SymptomEvidence, len(session.EvidenceLog))
	for _, ev := range session.EvidenceLog {
		current[ev.SymptomCode] = ev
	}
	return current
}

// ageBracket buckets an age in years into the brackets used by disorder
// risk associations.
func ageBracket(years int) string {
	switch {
	case years < 0:
		return ""
	case years <= 12:
		return "0-12"
	case years <= 17:
		return "13-17"
	case years <= 39:
		return "18-39"
	case years <= 64:
		return "40-64"
	default:
		return "65+"
	}
}

// DeriveRiskFactors computes the session's immutable risk factor set from
// the patient context snapshot. Missing demographic dimensions do not fail
// the session: the dimension is skipped with a degraded-profile warning and
// scoring assigns it zero weight.
func DeriveRiskFactors(ctx domain.PatientContext) ([]domain.RiskFactor, []domain.DegradedRiskWarning) {
	var factors []domain.RiskFactor
	var warnings []domain.DegradedRiskWarning

	// A nil age means the dimension was not supplied; age zero is a valid
	// infant patient and must not degrade the profile.
	if ctx.AgeYears == nil || *ctx.AgeYears < 0 {
		warnings = append(warnings, domain.DegradedRiskWarning{
			Dimension: domain.AGE_BRACKET,
			Reason:    "age missing from patient context",
		})
	} else {
		factors = append(factors, domain.RiskFactor{Kind: domain.AGE_BRACKET, Value: ageBracket(*ctx.AgeYears)})
	}

	if ctx.Sex != "" {
		factors = append(factors, domain.RiskFactor{Kind: domain.SEX, Value: ctx.Sex})
	} else {
		warnings = append(warnings, domain.DegradedRiskWarning{
			Dimension: domain.SEX,
			Reason:    "sex missing from patient context",
		})
	}

	family := dedupe(ctx.FamilyHistory)
	for _, code := range family {
		factors = append(factors, domain.RiskFactor{Kind: domain.FAMILY_HISTORY, Value: code})
	}
	personal := dedupe(ctx.PersonalHistory)
	for _, code := range personal {
		factors = append(factors, domain.RiskFactor{Kind: domain.PERSONAL_HISTORY, Value: code})
	}

	return factors, warnings
}

// dedupe returns the unique values in sorted order for determinism.
func dedupe(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(values))
	var out []string
	for _, v := range values {
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
