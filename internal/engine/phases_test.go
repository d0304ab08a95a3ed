package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apdpe/prediction-engine/internal/domain"
	"github.com/apdpe/prediction-engine/internal/knowledge"
)

func newTestMachine(rules PhaseRules, kb *knowledge.Provider) *PhaseMachine {
	logger := testLogger()
	return NewPhaseMachine(logger, rules,
		NewEvidenceModel(logger, kb),
		newTestScorer(),
		NewSelector(logger, rules),
		NewUrgencyClassifier(logger))
}

// answer builds a single-question response.
func answer(questionID string, items ...domain.ResponseItem) []domain.Response {
	return []domain.Response{{QuestionID: questionID, Items: items}}
}

func yes(code string) domain.ResponseItem {
	return domain.ResponseItem{SymptomCode: code, Present: true}
}

func no(code string) domain.ResponseItem {
	return domain.ResponseItem{SymptomCode: code, Present: false}
}

func stepMachine(t *testing.T, m *PhaseMachine, session *domain.Session, kb *knowledge.Provider, responses []domain.Response) *StepOutcome {
	t.Helper()
	outcome, err := m.Step(session, responses, kb)
	require.NoError(t, err)
	return outcome
}

func TestPhaseMachine_MinimumQuestionGateHoldsPhase(t *testing.T) {
	kb := testKB(t)
	machine := newTestMachine(DefaultPhaseRules(), kb)
	session := newTestSession()
	require.NotNil(t, machine.Bootstrap(session, kb))

	outcome := stepMachine(t, machine, session, kb, answer("Q_CHEST", no("S_CHEST_PAIN")))

	// Zero candidates is under the advance ceiling, but one answered
	// question is under the screening minimum, so the phase holds.
	assert.Equal(t, STEP_NEXT_QUESTION, outcome.Kind)
	assert.Equal(t, domain.SCREENING, session.Phase)
	require.NotNil(t, outcome.NextQuestion)
	assert.Equal(t, "Q_FEVER", outcome.NextQuestion.ID)
}

func TestPhaseMachine_RejectedBatchLeavesPhaseStateUntouched(t *testing.T) {
	kb := testKB(t)
	machine := newTestMachine(DefaultPhaseRules(), kb)
	session := newTestSession()
	require.NotNil(t, machine.Bootstrap(session, kb))

	_, err := machine.Step(session, []domain.Response{
		{QuestionID: "Q_CHEST", Items: []domain.ResponseItem{yes("S_CHEST_PAIN")}},
		{QuestionID: "Q_FEVER", Items: []domain.ResponseItem{yes("S_NOPE")}},
	}, kb)

	// The whole batch is validated before any entry is recorded.
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrUnknownSymptomCode)
	assert.Empty(t, session.EvidenceLog)
	assert.Equal(t, 0, session.QuestionsInPhase)
}

// TestPhaseMachine_FullSessionWalk drives one session from screening to the
// final report and checks the narrowing and urgency semantics along the way.
func TestPhaseMachine_FullSessionWalk(t *testing.T) {
	kb := testKB(t)
	machine := newTestMachine(DefaultPhaseRules(), kb)
	session := newTestSession()

	first := machine.Bootstrap(session, kb)
	require.NotNil(t, first)
	assert.Equal(t, "Q_CHEST", first.ID)

	out := stepMachine(t, machine, session, kb, answer("Q_CHEST", no("S_CHEST_PAIN")))
	require.Equal(t, STEP_NEXT_QUESTION, out.Kind)
	require.Equal(t, "Q_FEVER", out.NextQuestion.ID)

	out = stepMachine(t, machine, session, kb, answer("Q_FEVER", yes("S_FEVER")))
	require.Equal(t, STEP_NEXT_QUESTION, out.Kind)
	require.Equal(t, "Q_HEADACHE", out.NextQuestion.ID)

	out = stepMachine(t, machine, session, kb, answer("Q_HEADACHE", yes("S_HEADACHE"), no("S_AURA")))
	require.Equal(t, STEP_NEXT_QUESTION, out.Kind)
	require.Equal(t, "Q_SYSTEMIC", out.NextQuestion.ID)

	out = stepMachine(t, machine, session, kb, answer("Q_SYSTEMIC", no("S_FATIGUE"), no("S_NAUSEA")))
	require.Equal(t, STEP_NEXT_QUESTION, out.Kind)
	require.Equal(t, "Q_RESP", out.NextQuestion.ID)

	// Fifth answer satisfies the screening minimum and the candidate count
	// is already under the ceiling, so the session crosses into NARROW_10.
	out = stepMachine(t, machine, session, kb, answer("Q_RESP", no("S_COUGH"), no("S_DYSPNEA")))
	require.Equal(t, STEP_PHASE_ADVANCED, out.Kind)
	require.Len(t, out.Transitions, 1)
	assert.Equal(t, domain.SCREENING, out.Transitions[0].From)
	assert.Equal(t, domain.NARROW_10, out.Transitions[0].To)
	assert.False(t, out.Transitions[0].Forced)
	assert.Equal(t, domain.NARROW_10, session.Phase)
	require.NotNil(t, out.NextQuestion)
	require.Equal(t, "Q_NECK", out.NextQuestion.ID)

	// After the neck answer no remaining question can split the candidate
	// set, so the machine force-advances through the remaining phases and
	// finalizes. Boundaries only narrow; they never grow.
	out = stepMachine(t, machine, session, kb, answer("Q_NECK", yes("S_STIFF_NECK")))
	require.Equal(t, STEP_FINAL_REPORT, out.Kind)
	require.Len(t, out.Transitions, 3)
	for _, tr := range out.Transitions {
		assert.True(t, tr.Forced)
	}
	assert.Equal(t, domain.FINAL, session.Phase)
	assert.Equal(t, domain.COMPLETED, session.Status)

	report := out.Report
	require.NotNil(t, report)
	assert.Equal(t, session.ID, report.SessionID)
	assert.Equal(t, "D_MENINGITIS", report.TopCandidate.DisorderCode)
	assert.InDelta(t, 85.0, report.Confidence, 0.001)
	assert.Equal(t, domain.EMERGENCY, report.Urgency)
	assert.Equal(t, "seek immediate emergency care", report.RecommendedAction)
	assert.Equal(t, "test-1", report.KnowledgeVersion)
	assert.Len(t, report.ContributingSymptoms, 3)

	// Phase history is complete and monotonic.
	require.Len(t, session.PhaseHistory, 4)
	previous := domain.SCREENING
	for _, tr := range session.PhaseHistory {
		assert.Equal(t, previous, tr.From)
		assert.Greater(t, tr.To.Rank(), tr.From.Rank())
		previous = tr.To
	}
}

func TestPhaseMachine_ForcedTruncationKeepsTopRanked(t *testing.T) {
	kb := testKB(t)
	rules := DefaultPhaseRules()
	// A tight schedule: one answered question suffices, but the ceiling of
	// one forces truncation whenever more candidates survive.
	rules[domain.SCREENING] = domain.PhaseRule{
		TargetCount: 2, AdvanceCeiling: 1, MinQuestions: 99, MinDifferential: 1,
	}
	machine := newTestMachine(rules, kb)
	session := newTestSession()
	require.NotNil(t, machine.Bootstrap(session, kb))

	out := stepMachine(t, machine, session, kb, answer("Q_CHEST", no("S_CHEST_PAIN")))
	require.Equal(t, "Q_FEVER", out.NextQuestion.ID)
	out = stepMachine(t, machine, session, kb, answer("Q_FEVER", no("S_FEVER")))
	require.Equal(t, "Q_HEADACHE", out.NextQuestion.ID)

	// Headache evidence matches three disorders, above the ceiling of one.
	out = stepMachine(t, machine, session, kb, answer("Q_HEADACHE", yes("S_HEADACHE"), no("S_AURA")))
	require.Equal(t, STEP_NEXT_QUESTION, out.Kind)
	require.Equal(t, "Q_SYSTEMIC", out.NextQuestion.ID)

	// With the last discriminating question answered, the screening phase
	// runs out of differential power: the candidate list is truncated to the
	// target count and the forced transitions cascade to the final report.
	out = stepMachine(t, machine, session, kb, answer("Q_SYSTEMIC", no("S_FATIGUE"), no("S_NAUSEA")))
	require.Equal(t, STEP_FINAL_REPORT, out.Kind)
	require.NotEmpty(t, out.Transitions)
	first := out.Transitions[0]
	assert.Equal(t, domain.SCREENING, first.From)
	assert.True(t, first.Forced)
	assert.Equal(t, 2, first.CandidateCount)
	require.NotNil(t, out.Report)
	assert.Equal(t, "D_TENSION", out.Report.TopCandidate.DisorderCode)
}
