package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apdpe/prediction-engine/internal/domain"
	"github.com/apdpe/prediction-engine/internal/knowledge"
)

func newTestScorer() *Scorer {
	return NewScorer(testLogger(), DefaultWeights(), DefaultAtypicalPenalty)
}

func TestScoreCandidates_RankingAndExclusion(t *testing.T) {
	kb := testKB(t)
	scorer := newTestScorer()

	candidates := scorer.ScoreCandidates(presentEvidence("S_HEADACHE"), nil, kb)

	// D_FLU and D_ANGINA match nothing and must not appear at all.
	require.Len(t, candidates, 3)
	assert.Equal(t, "D_TENSION", candidates[0].DisorderCode)
	assert.Equal(t, "D_MIGRAINE", candidates[1].DisorderCode)
	assert.Equal(t, "D_MENINGITIS", candidates[2].DisorderCode)

	// D_TENSION: symptom 50, neutral risk 50, consistency 100.
	assert.InDelta(t, 55.0, candidates[0].Confidence, 0.001)
	// D_MIGRAINE: symptom 40 (weight 2 of 5), neutral risk, clean consistency.
	assert.InDelta(t, 49.0, candidates[1].Confidence, 0.001)
	assert.Equal(t, 1, candidates[1].MatchedSymptoms)
}

func TestScoreCandidates_AbsentEvidenceIsExclusionaryNotNegative(t *testing.T) {
	kb := testKB(t)
	scorer := newTestScorer()

	withoutFever := scorer.ScoreCandidates(presentEvidence("S_HEADACHE"), nil, kb)

	evidence := presentEvidence("S_HEADACHE")
	evidence["S_FEVER"] = domain.SymptomEvidence{SymptomCode: "S_FEVER", Present: false}
	withFeverDenied := scorer.ScoreCandidates(evidence, nil, kb)

	// An explicit "absent" answer zeroes that symptom's contribution but
	// never subtracts: every score is identical to not having asked.
	require.Equal(t, len(withoutFever), len(withFeverDenied))
	for i := range withoutFever {
		assert.Equal(t, withoutFever[i].DisorderCode, withFeverDenied[i].DisorderCode)
		assert.InDelta(t, withoutFever[i].Confidence, withFeverDenied[i].Confidence, 0.001)
	}
}

func TestScoreCandidates_RiskAlignment(t *testing.T) {
	kb := testKB(t)
	scorer := newTestScorer()
	risks := []domain.RiskFactor{{Kind: domain.AGE_BRACKET, Value: "65+"}}

	candidates := scorer.ScoreCandidates(presentEvidence("S_FEVER"), risks, kb)

	var flu *domain.CandidateDisorder
	for i := range candidates {
		if candidates[i].DisorderCode == "D_FLU" {
			flu = &candidates[i]
		}
	}
	require.NotNil(t, flu)

	// One of D_FLU's two associations aligned.
	assert.InDelta(t, 50.0, flu.RiskAlignmentScore, 0.001)
	require.Len(t, flu.ContributingRisks, 1)
	assert.Equal(t, domain.AGE_BRACKET, flu.ContributingRisks[0].Kind)
}

func TestScoreCandidates_NeutralRiskWithoutAssociations(t *testing.T) {
	kb := testKB(t)
	scorer := newTestScorer()

	candidates := scorer.ScoreCandidates(presentEvidence("S_HEADACHE"),
		[]domain.RiskFactor{{Kind: domain.SEX, Value: "M"}}, kb)

	for _, c := range candidates {
		// None of the headache disorders define risk associations.
		assert.InDelta(t, 50.0, c.RiskAlignmentScore, 0.001, c.DisorderCode)
		assert.Empty(t, c.ContributingRisks)
	}
}

func TestScoreCandidates_AtypicalPenalty(t *testing.T) {
	kb := testKB(t)
	scorer := newTestScorer()

	candidates := scorer.ScoreCandidates(presentEvidence("S_COUGH", "S_RASH"), nil, kb)

	require.Len(t, candidates, 1)
	require.Equal(t, "D_FLU", candidates[0].DisorderCode)
	assert.InDelta(t, 75.0, candidates[0].ConsistencyScore, 0.001)
}

func TestScoreCandidates_Deterministic(t *testing.T) {
	kb := testKB(t)
	scorer := newTestScorer()
	evidence := presentEvidence("S_HEADACHE", "S_FEVER", "S_COUGH")
	risks := []domain.RiskFactor{{Kind: domain.SEX, Value: "F"}}

	first := scorer.ScoreCandidates(evidence, risks, kb)
	second := scorer.ScoreCandidates(evidence, risks, kb)

	require.Equal(t, first, second)
}

func TestScoreCandidates_LexicalTieBreak(t *testing.T) {
	doc := `{
		"version": "tie",
		"symptoms": [{"code": "S1", "name": "one"}],
		"disorders": [
			{"code": "D_B", "name": "b", "signature": [{"code": "S1", "specificity": 1}], "urgency": "ROUTINE"},
			{"code": "D_A", "name": "a", "signature": [{"code": "S1", "specificity": 1}], "urgency": "ROUTINE"}
		],
		"questions": [
			{"id": "Q1", "prompt": "?", "target_symptoms": ["S1"], "phases": ["SCREENING"]}
		]
	}`
	kb, err := knowledge.NewProviderFromBytes(testLogger(), []byte(doc), 4)
	require.NoError(t, err)

	candidates := newTestScorer().ScoreCandidates(presentEvidence("S1"), nil, kb)

	require.Len(t, candidates, 2)
	assert.Equal(t, "D_A", candidates[0].DisorderCode)
	assert.Equal(t, "D_B", candidates[1].DisorderCode)
}
