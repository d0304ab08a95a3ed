package engine

import (
	"github.com/sirupsen/logrus"

	"github.com/apdpe/prediction-engine/internal/domain"
	"github.com/apdpe/prediction-engine/internal/knowledge"
)

// Selector chooses the next unasked question that best splits the current
// candidate set.
type Selector struct {
	logger *logrus.Logger
	rules  PhaseRules
}

// NewSelector creates a question selector driven by the per-phase rules.
func NewSelector(logger *logrus.Logger, rules PhaseRules) *Selector {
	return &Selector{logger: logger, rules: rules}
}

// SelectNextQuestion returns the best eligible unasked question, or nil when
// no remaining question clears the phase's minimum differential value,
// signaling the phase machine to force an early transition.
//
// Questions are ranked by differential value: across the current top-N
// candidates (N = the phase's target count), each target symptom referenced
// by a candidate's signature - as expected-present or expected-absent -
// counts toward the question's power to split the set. Until the phase's
// category coverage threshold is met, questions from uncovered goal
// categories are preferred to guarantee breadth before depth.
func (s *Selector) SelectNextQuestion(session *domain.Session, candidates []domain.CandidateDisorder, kb *knowledge.Provider) *domain.Question {
	rule := s.rules.For(session.Phase)
	top := topN(candidates, rule.TargetCount)

	type scored struct {
		question     *domain.Question
		differential int
		covers       bool
	}

	askedPerCategory := s.askedByCategory(session, kb)
	coverageMet := coverageMet(askedPerCategory, rule)

	questions := kb.Questions()
	var best *scored
	for i := range questions {
		q := &questions[i]
		if !q.EligibleIn(session.Phase) || session.WasAsked(q.ID) {
			continue
		}

		diff := s.differentialValue(q, top, kb)

		// With no candidates yet there is nothing to split; screening
		// questions are still valid and ranked by coverage and id.
		if len(top) > 0 && diff < rule.MinDifferential {
			continue
		}

		cand := &scored{
			question:     q,
			differential: diff,
			covers:       !coverageMet && coversGap(askedPerCategory, q, rule),
		}
		if best == nil || betterQuestion(cand.covers, cand.differential, cand.question.ID,
			best.covers, best.differential, best.question.ID) {
			best = cand
		}
	}

	if best == nil {
		s.logger.WithFields(logrus.Fields{
			"session_id": session.ID,
			"phase":      session.Phase.String(),
		}).Debug("No eligible question above differential threshold")
		return nil
	}

	s.logger.WithFields(logrus.Fields{
		"session_id":   session.ID,
		"phase":        session.Phase.String(),
		"question_id":  best.question.ID,
		"differential": best.differential,
	}).Debug("Selected next question")

	return best.question
}

// betterQuestion orders candidates: coverage-gap questions first, then
// higher differential, then lexical question id for determinism.
func betterQuestion(aCovers bool, aDiff int, aID string, bCovers bool, bDiff int, bID string) bool {
	if aCovers != bCovers {
		return aCovers
	}
	if aDiff != bDiff {
		return aDiff > bDiff
	}
	return aID < bID
}

// differentialValue counts, over the top candidates, how many signature
// references the question's target symptoms can discriminate on. A target
// symptom counts for a candidate when the disorder's signature references it
// in exactly one of its expected-present or expected-absent sets.
func (s *Selector) differentialValue(q *domain.Question, top []domain.CandidateDisorder, kb *knowledge.Provider) int {
	value := 0
	for _, cand := range top {
		sig, ok := kb.Signature(cand.DisorderCode)
		if !ok {
			continue
		}
		for _, symptom := range q.TargetSymptoms {
			_, present := sig.ExpectedPresent[symptom]
			absent := sig.ExpectedAbsent[symptom]
			if present != absent {
				value++
			}
		}
	}
	return value
}

// coverageMet reports whether each of the phase's coverage goal categories
// has received at least the minimum number of asked questions.
func coverageMet(askedPerCategory map[string]int, rule domain.PhaseRule) bool {
	if len(rule.CoverageCategories) == 0 {
		return true
	}
	minimum := rule.MinCategoryCoverage
	if minimum <= 0 {
		minimum = 1
	}
	for _, cat := range rule.CoverageCategories {
		if askedPerCategory[cat] < minimum {
			return false
		}
	}
	return true
}

// coversGap reports whether the question belongs to a goal category still
// below the phase's coverage minimum.
func coversGap(askedPerCategory map[string]int, q *domain.Question, rule domain.PhaseRule) bool {
	if q.Category == "" {
		return false
	}
	minimum := rule.MinCategoryCoverage
	if minimum <= 0 {
		minimum = 1
	}
	for _, cat := range rule.CoverageCategories {
		if cat == q.Category {
			return askedPerCategory[cat] < minimum
		}
	}
	return false
}

// askedByCategory tallies asked questions per knowledge base category.
func (s *Selector) askedByCategory(session *domain.Session, kb *knowledge.Provider) map[string]int {
	counts := make(map[string]int)
	for _, id := range session.AskedQuestions {
		if q, ok := kb.Question(id); ok && q.Category != "" {
			counts[q.Category]++
		}
	}
	return counts
}

// topN returns the first n candidates of an already-ranked list.
func topN(candidates []domain.CandidateDisorder, n int) []domain.CandidateDisorder {
	if n <= 0 || n >= len(candidates) {
		return candidates
	}
	return candidates[:n]
}
