package engine

import (
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/apdpe/prediction-engine/internal/domain"
	"github.com/apdpe/prediction-engine/internal/knowledge"
)

// ScoringWeights is the fixed weighted-evidence combination contract.
// The three weights are expected to sum to 1.0.
type ScoringWeights struct {
	Symptom     float64
	Risk        float64
	Consistency float64
}

// DefaultWeights returns the documented 0.60/0.30/0.10 combination.
func DefaultWeights() ScoringWeights {
	return ScoringWeights{Symptom: 0.60, Risk: 0.30, Consistency: 0.10}
}

// DefaultAtypicalPenalty is the consistency deduction per atypical symptom
// pairing found in the accumulated evidence.
const DefaultAtypicalPenalty = 25.0

// Scorer computes the ranked candidate disorder list from accumulated
// evidence. Scoring is a pure function of (evidence, risk factors,
// knowledge base): identical inputs always yield an identical,
// identically-ordered list.
type Scorer struct {
	logger          *logrus.Logger
	weights         ScoringWeights
	atypicalPenalty float64
}

// NewScorer creates a scorer with the given weighting contract.
func NewScorer(logger *logrus.Logger, weights ScoringWeights, atypicalPenalty float64) *Scorer {
	if atypicalPenalty <= 0 {
		atypicalPenalty = DefaultAtypicalPenalty
	}
	return &Scorer{logger: logger, weights: weights, atypicalPenalty: atypicalPenalty}
}

// ScoreCandidates scores every knowledge base disorder against the current
// evidence and risk factors. Disorders with zero matched symptoms are
// excluded entirely. The result is sorted by descending confidence with
// ties broken by higher matched-symptom count, then lexical disorder code.
func (s *Scorer) ScoreCandidates(evidence map[string]domain.SymptomEvidence, risks []domain.RiskFactor, kb *knowledge.Provider) []domain.CandidateDisorder {
	riskSet := make(map[string]domain.RiskFactor, len(risks))
	for _, r := range risks {
		riskSet[r.Key()] = r
	}

	candidates := make([]domain.CandidateDisorder, 0, len(kb.Disorders()))
	for _, d := range kb.Disorders() {
		sig, ok := kb.Signature(d.Code)
		if !ok || sig.TotalWeight == 0 {
			continue
		}

		matchScore, matched := s.symptomMatchScore(sig, evidence)
		if matched == 0 {
			continue
		}

		riskScore, contributing := s.riskAlignmentScore(&d, riskSet)
		consistency := s.consistencyScore(&d, evidence)

		confidence := s.weights.Symptom*matchScore +
			s.weights.Risk*riskScore +
			s.weights.Consistency*consistency
		confidence = clamp(confidence, 0, 100)

		candidates = append(candidates, domain.CandidateDisorder{
			DisorderCode:       d.Code,
			DisorderName:       d.Name,
			Confidence:         confidence,
			MatchedSymptoms:    matched,
			ContributingRisks:  contributing,
			Urgency:            d.Urgency,
			SymptomMatchScore:  matchScore,
			RiskAlignmentScore: riskScore,
			ConsistencyScore:   consistency,
		})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Confidence != candidates[j].Confidence {
			return candidates[i].Confidence > candidates[j].Confidence
		}
		if candidates[i].MatchedSymptoms != candidates[j].MatchedSymptoms {
			return candidates[i].MatchedSymptoms > candidates[j].MatchedSymptoms
		}
		return candidates[i].DisorderCode < candidates[j].DisorderCode
	})

	return candidates
}

// symptomMatchScore returns the specificity-weighted fraction of the
// disorder's expected-present signature found in evidence, normalized to
// [0,100], along with the matched symptom count. A signature symptom the
// evidence explicitly marks absent contributes zero for that symptom; this
// is exclusionary, never a negative penalty.
func (s *Scorer) symptomMatchScore(sig *knowledge.CompiledSignature, evidence map[string]domain.SymptomEvidence) (float64, int) {
	var matchedWeight float64
	matched := 0
	for code, weight := range sig.ExpectedPresent {
		ev, ok := evidence[code]
		if !ok || !ev.Present {
			continue
		}
		matchedWeight += weight
		matched++
	}
	if sig.TotalWeight == 0 {
		return 0, matched
	}
	return 100 * matchedWeight / sig.TotalWeight, matched
}

// riskAlignmentScore returns the proportion of the disorder's risk
// associations present in the session risk set, normalized to [0,100].
// Disorders with no defined associations score a neutral 50.
func (s *Scorer) riskAlignmentScore(d *domain.Disorder, riskSet map[string]domain.RiskFactor) (float64, []domain.RiskFactor) {
	if len(d.RiskAssociations) == 0 {
		return 50, nil
	}
	var contributing []domain.RiskFactor
	for _, assoc := range d.RiskAssociations {
		if rf, ok := riskSet[assoc.Key()]; ok {
			contributing = append(contributing, rf)
		}
	}
	return 100 * float64(len(contributing)) / float64(len(d.RiskAssociations)), contributing
}

// consistencyScore starts at 100 and deducts a fixed penalty for every
// atypical symptom pairing where both symptoms are present in evidence,
// floored at 0.
func (s *Scorer) consistencyScore(d *domain.Disorder, evidence map[string]domain.SymptomEvidence) float64 {
	score := 100.0
	for _, pair := range d.AtypicalPairs {
		first, okA := evidence[pair[0]]
		second, okB := evidence[pair[1]]
		if okA && okB && first.Present && second.Present {
			score -= s.atypicalPenalty
		}
	}
	return clamp(score, 0, 100)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
