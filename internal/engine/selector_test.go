package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apdpe/prediction-engine/internal/domain"
)

func candidatesFor(codes ...string) []domain.CandidateDisorder {
	out := make([]domain.CandidateDisorder, 0, len(codes))
	for _, code := range codes {
		out = append(out, domain.CandidateDisorder{DisorderCode: code, MatchedSymptoms: 1})
	}
	return out
}

func TestSelectNextQuestion_EmptyCandidateSetStillYieldsScreeningQuestion(t *testing.T) {
	kb := testKB(t)
	selector := NewSelector(testLogger(), DefaultPhaseRules())
	session := newTestSession()

	q := selector.SelectNextQuestion(session, nil, kb)

	// Nothing to split yet; the differential cutoff must not starve the
	// screening phase. Ties resolve to the lexically first eligible id.
	require.NotNil(t, q)
	assert.Equal(t, "Q_CHEST", q.ID)
}

func TestSelectNextQuestion_NeverRepeatsAndExhausts(t *testing.T) {
	kb := testKB(t)
	selector := NewSelector(testLogger(), DefaultPhaseRules())
	session := newTestSession()

	seen := make(map[string]bool)
	for {
		q := selector.SelectNextQuestion(session, nil, kb)
		if q == nil {
			break
		}
		assert.False(t, seen[q.ID], "question %s offered twice", q.ID)
		seen[q.ID] = true
		session.MarkAsked(q.ID)
	}

	// All five screening-eligible questions were offered exactly once.
	assert.Len(t, seen, 5)
}

func TestSelectNextQuestion_PrefersHighestDifferential(t *testing.T) {
	kb := testKB(t)
	selector := NewSelector(testLogger(), DefaultPhaseRules())
	session := newTestSession()
	session.Phase = domain.NARROW_10

	q := selector.SelectNextQuestion(session, candidatesFor("D_MIGRAINE", "D_MENINGITIS"), kb)

	// Q_HEADACHE discriminates on three signature references, beating
	// Q_FEVER's two and Q_NECK's one.
	require.NotNil(t, q)
	assert.Equal(t, "Q_HEADACHE", q.ID)
}

func TestSelectNextQuestion_DifferentialCutoffReturnsNil(t *testing.T) {
	kb := testKB(t)
	selector := NewSelector(testLogger(), DefaultPhaseRules())
	session := newTestSession()
	session.Phase = domain.NARROW_3
	session.MarkAsked("Q_CHEST")

	// Only Q_NECK remains eligible and it cannot split an angina-only set.
	q := selector.SelectNextQuestion(session, candidatesFor("D_ANGINA"), kb)

	assert.Nil(t, q)
}

func TestSelectNextQuestion_CoverageGapBeatsRawDifferential(t *testing.T) {
	kb := testKB(t)
	rules := DefaultPhaseRules()
	rule := rules[domain.SCREENING]
	rule.CoverageCategories = []string{"general", "cardio"}
	rule.MinCategoryCoverage = 1
	rules[domain.SCREENING] = rule
	selector := NewSelector(testLogger(), rules)
	session := newTestSession()

	q := selector.SelectNextQuestion(session, candidatesFor("D_MIGRAINE", "D_MENINGITIS"), kb)

	// Q_HEADACHE has the higher differential but the "general" coverage goal
	// is still open, so Q_FEVER wins.
	require.NotNil(t, q)
	assert.Equal(t, "Q_FEVER", q.ID)
}
