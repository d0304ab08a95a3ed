package engine

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/apdpe/prediction-engine/internal/domain"
	"github.com/apdpe/prediction-engine/internal/knowledge"
)

// PhaseRules holds the narrowing configuration per phase. The per-phase
// numbers are configuration, not hard-coded constants.
type PhaseRules map[domain.Phase]domain.PhaseRule

// For returns the rule for a phase, falling back to the defaults when the
// phase is not configured.
func (r PhaseRules) For(p domain.Phase) domain.PhaseRule {
	if rule, ok := r[p]; ok {
		return rule
	}
	return DefaultPhaseRules()[p]
}

// DefaultPhaseRules returns the default narrowing schedule: candidate
// boundaries 10 / 5 / 3 / 1 with decreasing minimum question counts.
func DefaultPhaseRules() PhaseRules {
	return PhaseRules{
		domain.SCREENING: {TargetCount: 10, AdvanceCeiling: 10, MinQuestions: 5, MinDifferential: 1},
		domain.NARROW_10: {TargetCount: 10, AdvanceCeiling: 5, MinQuestions: 4, MinDifferential: 1},
		domain.NARROW_5:  {TargetCount: 5, AdvanceCeiling: 3, MinQuestions: 3, MinDifferential: 1},
		domain.NARROW_3:  {TargetCount: 3, AdvanceCeiling: 1, MinQuestions: 2, MinDifferential: 1},
	}
}

// StepKind discriminates the outcome of one engine step.
type StepKind string

const (
	// STEP_NEXT_QUESTION asks the caller to obtain one more answer.
	STEP_NEXT_QUESTION StepKind = "NEXT_QUESTION"
	// STEP_PHASE_ADVANCED reports one or more phase boundary crossings.
	STEP_PHASE_ADVANCED StepKind = "PHASE_ADVANCED"
	// STEP_FINAL_REPORT reports session completion with the terminal report.
	STEP_FINAL_REPORT StepKind = "FINAL_REPORT"
)

// StepOutcome is the result of feeding responses through the phase machine:
// either the next question, a phase-transition notice with the interim
// top candidates, or the final report.
type StepOutcome struct {
	Kind         StepKind                   `json:"kind"`
	Phase        domain.Phase               `json:"phase"`
	NextQuestion *domain.Question           `json:"next_question,omitempty"`
	Transitions  []domain.PhaseTransition   `json:"transitions,omitempty"`
	Candidates   []domain.CandidateDisorder `json:"candidates,omitempty"`
	Urgency      domain.UrgencyClass        `json:"urgency,omitempty"`
	Report       *domain.FinalReport        `json:"report,omitempty"`
}

// PhaseMachine orchestrates the session lifecycle: it records evidence,
// rescores candidates, enforces the phase transition gates and composes the
// terminal report. Transitions are monotonic; there is no way back.
type PhaseMachine struct {
	logger   *logrus.Logger
	rules    PhaseRules
	evidence *EvidenceModel
	scorer   *Scorer
	selector *Selector
	urgency  *UrgencyClassifier
}

// NewPhaseMachine wires the engine components together.
func NewPhaseMachine(logger *logrus.Logger, rules PhaseRules, evidence *EvidenceModel, scorer *Scorer, selector *Selector, urgency *UrgencyClassifier) *PhaseMachine {
	return &PhaseMachine{
		logger:   logger,
		rules:    rules,
		evidence: evidence,
		scorer:   scorer,
		selector: selector,
		urgency:  urgency,
	}
}

// Bootstrap selects and marks the first screening question for a freshly
// created session. A nil return means the question bank yields no applicable
// initial question, which is fatal for session creation.
func (m *PhaseMachine) Bootstrap(session *domain.Session, kb *knowledge.Provider) *domain.Question {
	q := m.selector.SelectNextQuestion(session, session.Candidates, kb)
	if q == nil {
		return nil
	}
	session.MarkAsked(q.ID)
	return q
}

// Step feeds one or more responses through the machine. All responses are
// validated before any evidence is recorded, so a rejected batch leaves the
// session state and phase unchanged.
func (m *PhaseMachine) Step(session *domain.Session, responses []domain.Response, kb *knowledge.Provider) (*StepOutcome, error) {
	for _, resp := range responses {
		if err := m.evidence.ValidateResponse(resp); err != nil {
			return nil, err
		}
	}

	for _, resp := range responses {
		if _, err := m.evidence.RecordResponse(session, resp); err != nil {
			return nil, err
		}
	}
	session.QuestionsInPhase += len(responses)

	// The candidate list is replaced wholesale on every scoring pass;
	// within a phase it may grow again as new evidence matches more
	// disorders, but phase boundaries only ever narrow it.
	session.Candidates = m.scorer.ScoreCandidates(CurrentEvidence(session), session.RiskFactors, kb)

	var transitions []domain.PhaseTransition
	for {
		if session.Phase == domain.FINAL {
			report := m.finalize(session, kb)
			return &StepOutcome{
				Kind:        STEP_FINAL_REPORT,
				Phase:       session.Phase,
				Transitions: transitions,
				Candidates:  session.Candidates,
				Urgency:     report.Urgency,
				Report:      report,
			}, nil
		}

		rule := m.rules.For(session.Phase)

		if session.QuestionsInPhase >= rule.MinQuestions && len(session.Candidates) <= rule.AdvanceCeiling {
			transitions = append(transitions, m.advance(session, kb, rule, false))
			continue
		}

		next := m.selector.SelectNextQuestion(session, session.Candidates, kb)
		if next == nil {
			// Differential questions exhausted: keep the top scored
			// candidates and move on with what we have.
			session.Candidates = topN(session.Candidates, rule.TargetCount)
			transitions = append(transitions, m.advance(session, kb, rule, true))
			continue
		}

		session.MarkAsked(next.ID)

		outcome := &StepOutcome{
			Kind:         STEP_NEXT_QUESTION,
			Phase:        session.Phase,
			NextQuestion: next,
			Candidates:   topN(session.Candidates, rule.TargetCount),
		}
		if len(transitions) > 0 {
			outcome.Kind = STEP_PHASE_ADVANCED
			outcome.Transitions = transitions
			outcome.Urgency = transitions[len(transitions)-1].Urgency
		}
		return outcome, nil
	}
}

// advance crosses one phase boundary, recording the transition and running
// the urgency check so an emergency can surface mid-session.
func (m *PhaseMachine) advance(session *domain.Session, kb *knowledge.Provider, rule domain.PhaseRule, forced bool) domain.PhaseTransition {
	next, _ := session.Phase.Next()
	urgency := m.urgency.ClassifyUrgency(topN(session.Candidates, rule.TargetCount), kb)

	transition := domain.PhaseTransition{
		From:           session.Phase,
		To:             next,
		CandidateCount: len(session.Candidates),
		Forced:         forced,
		Urgency:        urgency,
		At:             time.Now().UTC(),
	}
	session.PhaseHistory = append(session.PhaseHistory, transition)
	session.Phase = next
	session.QuestionsInPhase = 0

	m.logger.WithFields(logrus.Fields{
		"session_id": session.ID,
		"from":       transition.From.String(),
		"to":         transition.To.String(),
		"candidates": transition.CandidateCount,
		"forced":     forced,
		"urgency":    urgency.String(),
	}).Info("Phase transition")

	return transition
}

// finalize runs the last scoring pass, takes the single top-ranked candidate
// and composes the terminal report. The session becomes COMPLETED.
func (m *PhaseMachine) finalize(session *domain.Session, kb *knowledge.Provider) *domain.FinalReport {
	// The last rescore stays within the carried candidate set; a disorder
	// eliminated at an earlier boundary cannot reappear on the report.
	carried := make(map[string]bool, len(session.Candidates))
	for _, c := range session.Candidates {
		carried[c.DisorderCode] = true
	}
	rescored := m.scorer.ScoreCandidates(CurrentEvidence(session), session.RiskFactors, kb)
	final := make([]domain.CandidateDisorder, 0, len(carried))
	for _, c := range rescored {
		if carried[c.DisorderCode] {
			final = append(final, c)
		}
	}
	session.Candidates = final
	if len(session.Candidates) > 1 {
		session.Candidates = session.Candidates[:1]
	}

	report := &domain.FinalReport{
		SessionID:               session.ID,
		PhaseHistory:            session.PhaseHistory,
		Warnings:                session.RiskWarnings,
		KnowledgeVersion:        kb.Version(),
		ContributingRiskFactors: session.RiskFactors,
		GeneratedAt:             time.Now().UTC(),
	}

	if len(session.Candidates) > 0 {
		top := session.Candidates[0]
		report.TopCandidate = top
		report.Confidence = top.Confidence
		report.ContributingSymptoms = m.contributingSymptoms(session, top.DisorderCode, kb)
		report.ContributingRiskFactors = top.ContributingRisks
	}

	report.Urgency = m.urgency.ClassifyUrgency(session.Candidates, kb)
	report.RecommendedAction = report.Urgency.RecommendedAction()

	session.Status = domain.COMPLETED

	m.logger.WithFields(logrus.Fields{
		"session_id": session.ID,
		"top":        report.TopCandidate.DisorderCode,
		"confidence": report.Confidence,
		"urgency":    report.Urgency.String(),
	}).Info("Session finalized")

	return report
}

// contributingSymptoms filters the effective evidence down to the symptoms
// present in both the evidence and the top candidate's signature.
func (m *PhaseMachine) contributingSymptoms(session *domain.Session, disorderCode string, kb *knowledge.Provider) []domain.SymptomEvidence {
	sig, ok := kb.Signature(disorderCode)
	if !ok {
		return nil
	}
	current := CurrentEvidence(session)

	var contributing []domain.SymptomEvidence
	for _, ev := range session.EvidenceLog {
		latest, isLatest := current[ev.SymptomCode]
		if !isLatest || latest.RecordedAt != ev.RecordedAt || !ev.Present {
			continue
		}
		if _, expected := sig.ExpectedPresent[ev.SymptomCode]; expected {
			contributing = append(contributing, ev)
			delete(current, ev.SymptomCode)
		}
	}
	return contributing
}
