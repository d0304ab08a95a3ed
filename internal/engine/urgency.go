package engine

import (
	"github.com/sirupsen/logrus"

	"github.com/apdpe/prediction-engine/internal/domain"
	"github.com/apdpe/prediction-engine/internal/knowledge"
)

// urgencyTopSet is how many leading candidates contribute their configured
// urgency tier when no emergency flag is present.
const urgencyTopSet = 3

// UrgencyClassifier maps a candidate set to an action tier. It runs after
// every phase transition, not only at FINAL, so an emergency can be
// surfaced mid-session.
type UrgencyClassifier struct {
	logger *logrus.Logger
}

// NewUrgencyClassifier creates an urgency classifier.
func NewUrgencyClassifier(logger *logrus.Logger) *UrgencyClassifier {
	return &UrgencyClassifier{logger: logger}
}

// ClassifyUrgency returns the action tier for the given candidate set.
// Any candidate flagged as an emergency-class disorder forces EMERGENCY
// regardless of its confidence rank; emergency flags dominate scoring.
// Otherwise the highest tier among the top-3 candidates wins, by precedence
// emergency > urgent > routine > monitoring. An empty candidate set
// classifies as MONITORING.
func (c *UrgencyClassifier) ClassifyUrgency(candidates []domain.CandidateDisorder, kb *knowledge.Provider) domain.UrgencyClass {
	for _, cand := range candidates {
		if d, ok := kb.Disorder(cand.DisorderCode); ok && d.Emergency {
			c.logger.WithFields(logrus.Fields{
				"disorder_code": cand.DisorderCode,
				"confidence":    cand.Confidence,
			}).Warn("Emergency-flagged disorder in candidate set")
			return domain.EMERGENCY
		}
	}

	urgency := domain.MONITORING
	for _, cand := range topN(candidates, urgencyTopSet) {
		if cand.Urgency.IsValid() && cand.Urgency.Outranks(urgency) {
			urgency = cand.Urgency
		}
	}
	return urgency
}
