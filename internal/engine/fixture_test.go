package engine

import (
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/apdpe/prediction-engine/internal/domain"
	"github.com/apdpe/prediction-engine/internal/knowledge"
)

// testLogger returns a silent logger for engine tests.
func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// testKnowledgeDoc is a small but complete reference document covering the
// scoring, selection and urgency paths: weighted signatures, an exclusionary
// absent symptom, risk associations, an atypical pairing and an
// emergency-flagged disorder.
const testKnowledgeDoc = `{
  "version": "test-1",
  "symptoms": [
    {"code": "S_HEADACHE", "name": "Headache", "category": "general"},
    {"code": "S_AURA", "name": "Visual aura", "category": "neuro"},
    {"code": "S_FEVER", "name": "Fever", "category": "general"},
    {"code": "S_STIFF_NECK", "name": "Neck stiffness", "category": "neuro"},
    {"code": "S_COUGH", "name": "Cough", "category": "resp"},
    {"code": "S_CHEST_PAIN", "name": "Chest pain", "category": "cardio"},
    {"code": "S_DYSPNEA", "name": "Shortness of breath", "category": "cardio"},
    {"code": "S_RASH", "name": "Skin rash", "category": "derm"},
    {"code": "S_NAUSEA", "name": "Nausea", "category": "general"},
    {"code": "S_FATIGUE", "name": "Fatigue", "category": "general"}
  ],
  "disorders": [
    {
      "code": "D_MIGRAINE",
      "name": "Migraine",
      "signature": [
        {"code": "S_HEADACHE", "specificity": 2},
        {"code": "S_AURA", "specificity": 3},
        {"code": "S_FEVER", "expected_absent": true}
      ],
      "urgency": "ROUTINE"
    },
    {
      "code": "D_TENSION",
      "name": "Tension headache",
      "signature": [
        {"code": "S_HEADACHE", "specificity": 1},
        {"code": "S_FATIGUE", "specificity": 1}
      ],
      "urgency": "MONITORING"
    },
    {
      "code": "D_MENINGITIS",
      "name": "Meningitis",
      "signature": [
        {"code": "S_HEADACHE", "specificity": 1},
        {"code": "S_FEVER", "specificity": 2},
        {"code": "S_STIFF_NECK", "specificity": 4}
      ],
      "urgency": "EMERGENCY",
      "emergency": true
    },
    {
      "code": "D_FLU",
      "name": "Influenza",
      "signature": [
        {"code": "S_FEVER", "specificity": 2},
        {"code": "S_COUGH", "specificity": 2},
        {"code": "S_FATIGUE", "specificity": 1}
      ],
      "risk_associations": [
        {"kind": "AGE_BRACKET", "value": "65+"},
        {"kind": "SEX", "value": "F"}
      ],
      "atypical_pairs": [["S_COUGH", "S_RASH"]],
      "urgency": "ROUTINE"
    },
    {
      "code": "D_ANGINA",
      "name": "Angina",
      "signature": [
        {"code": "S_CHEST_PAIN", "specificity": 4},
        {"code": "S_DYSPNEA", "specificity": 2}
      ],
      "risk_associations": [
        {"kind": "FAMILY_HISTORY", "value": "cad"}
      ],
      "urgency": "URGENT"
    }
  ],
  "questions": [
    {
      "id": "Q_CHEST",
      "prompt": "Do you have chest pain?",
      "target_symptoms": ["S_CHEST_PAIN"],
      "phases": ["SCREENING", "NARROW_10", "NARROW_5", "NARROW_3"],
      "category": "cardio"
    },
    {
      "id": "Q_FEVER",
      "prompt": "Do you have a fever?",
      "target_symptoms": ["S_FEVER"],
      "phases": ["SCREENING", "NARROW_10", "NARROW_5"],
      "category": "general"
    },
    {
      "id": "Q_HEADACHE",
      "prompt": "Do you have a headache, and does it come with visual aura?",
      "target_symptoms": ["S_HEADACHE", "S_AURA"],
      "phases": ["SCREENING", "NARROW_10"],
      "category": "neuro"
    },
    {
      "id": "Q_NECK",
      "prompt": "Is your neck stiff?",
      "target_symptoms": ["S_STIFF_NECK"],
      "phases": ["NARROW_10", "NARROW_5", "NARROW_3"],
      "category": "neuro"
    },
    {
      "id": "Q_RASH",
      "prompt": "Do you have a skin rash?",
      "target_symptoms": ["S_RASH"],
      "phases": ["NARROW_10", "NARROW_5"],
      "category": "derm"
    },
    {
      "id": "Q_RESP",
      "prompt": "Do you have a cough or shortness of breath?",
      "target_symptoms": ["S_COUGH", "S_DYSPNEA"],
      "phases": ["SCREENING", "NARROW_10", "NARROW_5"],
      "category": "resp"
    },
    {
      "id": "Q_SYSTEMIC",
      "prompt": "Do you feel fatigued or nauseous?",
      "target_symptoms": ["S_FATIGUE", "S_NAUSEA"],
      "phases": ["SCREENING"],
      "category": "general"
    }
  ]
}`

// testKB loads the shared test knowledge base.
func testKB(t *testing.T) *knowledge.Provider {
	t.Helper()
	kb, err := knowledge.NewProviderFromBytes(testLogger(), []byte(testKnowledgeDoc), 16)
	require.NoError(t, err)
	return kb
}

// newTestSession returns a fresh active screening session.
func newTestSession() *domain.Session {
	now := time.Now().UTC()
	return &domain.Session{
		ID:             "sess-test",
		Phase:          domain.SCREENING,
		Status:         domain.ACTIVE,
		CreatedAt:      now,
		LastActivityAt: now,
	}
}

// presentEvidence builds an effective-evidence map with the given symptom
// codes marked present.
func presentEvidence(codes ...string) map[string]domain.SymptomEvidence {
	ev := make(map[string]domain.SymptomEvidence, len(codes))
	for _, code := range codes {
		ev[code] = domain.SymptomEvidence{SymptomCode: code, Present: true}
	}
	return ev
}
