package domain

import (
	"time"
)

// Patient Context Models

// PatientContext is the immutable snapshot of demographics and history
// supplied by the patient context provider at session start. It is read-only
// after session creation. AgeYears is a pointer so a missing age is
// distinguishable from age zero.
type PatientContext struct {
	PatientRef      string   `json:"patient_ref,omitempty"`
	AgeYears        *int     `json:"age_years,omitempty"`
	Sex             string   `json:"sex,omitempty"`
	FamilyHistory   []string `json:"family_history,omitempty"`
	PersonalHistory []string `json:"personal_history,omitempty"`
}

// RiskFactor is derived once at session start from the patient context
// snapshot and is immutable for the session lifetime.
type RiskFactor struct {
	Kind  RiskFactorKind `json:"kind"`
	Value string         `json:"value"`
}

// Key returns the canonical identity of a risk factor used for matching
// against disorder risk associations.
func (r RiskFactor) Key() string {
	return string(r.Kind) + ":" + r.Value
}

// Evidence Models

// SymptomEvidence is a single recorded symptom observation derived from one
// response. Entries are immutable once recorded; later evidence for the same
// symptom code supersedes earlier entries (most-recent-wins).
type SymptomEvidence struct {
	SymptomCode string    `json:"symptom_code"`
	Present     bool      `json:"present"`
	Severity    Severity  `json:"severity,omitempty"`
	Onset       Onset     `json:"onset,omitempty"`
	QuestionID  string    `json:"question_id,omitempty"`
	RecordedAt  time.Time `json:"recorded_at"`
}

// Response is one structured answer submitted for an asked question.
type Response struct {
	QuestionID string         `json:"question_id"`
	Items      []ResponseItem `json:"items"`
	AnsweredAt time.Time      `json:"answered_at,omitempty"`
}

// ResponseItem is one symptom observation inside a response.
type ResponseItem struct {
	SymptomCode string   `json:"symptom_code"`
	Present     bool     `json:"present"`
	Severity    Severity `json:"severity,omitempty"`
	Onset       Onset    `json:"onset,omitempty"`
}

// Candidate Models

// CandidateDisorder is one disorder hypothesis with its confidence score.
// The whole candidate list is replaced on every scoring pass; confidence is
// never mutated independently of the evidence it was derived from.
type CandidateDisorder struct {
	DisorderCode      string       `json:"disorder_code"`
	DisorderName      string       `json:"disorder_name,omitempty"`
	Confidence        float64      `json:"confidence"`
	MatchedSymptoms   int          `json:"matched_symptoms"`
	ContributingRisks []RiskFactor `json:"contributing_risks,omitempty"`
	Urgency           UrgencyClass `json:"urgency"`

	// Sub-scores retained for report traceability.
	SymptomMatchScore  float64 `json:"symptom_match_score"`
	RiskAlignmentScore float64 `json:"risk_alignment_score"`
	ConsistencyScore   float64 `json:"consistency_score"`
}

// Knowledge Base Models (read-only reference data)

// Symptom is one entry of the knowledge base symptom catalogue.
type Symptom struct {
	Code     string `json:"code"`
	Name     string `json:"name"`
	Category string `json:"category,omitempty"`
}

// SignatureSymptom is one element of a disorder's symptom signature.
// ExpectedAbsent marks symptoms whose presence argues against the disorder.
type SignatureSymptom struct {
	Code           string  `json:"code"`
	Specificity    float64 `json:"specificity"`
	ExpectedAbsent bool    `json:"expected_absent,omitempty"`
}

// RiskAssociation links a disorder to a risk factor that raises its prior.
type RiskAssociation struct {
	Kind  RiskFactorKind `json:"kind"`
	Value string         `json:"value"`
}

// Key returns the canonical identity used for matching session risk factors.
func (a RiskAssociation) Key() string {
	return string(a.Kind) + ":" + a.Value
}

// Disorder is one knowledge base disorder definition with its symptom
// signature, risk associations and urgency classification.
type Disorder struct {
	Code             string             `json:"code"`
	Name             string             `json:"name"`
	Signature        []SignatureSymptom `json:"signature"`
	RiskAssociations []RiskAssociation  `json:"risk_associations,omitempty"`
	AtypicalPairs    [][2]string        `json:"atypical_pairs,omitempty"`
	Urgency          UrgencyClass       `json:"urgency"`
	Emergency        bool               `json:"emergency,omitempty"`
}

// Question is a read-only question bank entry. Questions are never mutated
// by the engine.
type Question struct {
	ID             string   `json:"id"`
	Prompt         string   `json:"prompt"`
	TargetSymptoms []string `json:"target_symptoms"`
	Phases         []Phase  `json:"phases"`
	Category       string   `json:"category,omitempty"`
}

// EligibleIn reports whether the question may be asked during the phase.
func (q *Question) EligibleIn(phase Phase) bool {
	for _, p := range q.Phases {
		if p == phase {
			return true
		}
	}
	return false
}

// Session Models

// PhaseTransition records one boundary crossing of the narrowing pipeline.
type PhaseTransition struct {
	From           Phase        `json:"from"`
	To             Phase        `json:"to"`
	CandidateCount int          `json:"candidate_count"`
	Forced         bool         `json:"forced,omitempty"`
	Urgency        UrgencyClass `json:"urgency,omitempty"`
	At             time.Time    `json:"at"`
}

// Session identifies one analysis run. It is owned exclusively by the
// session lifecycle manager and mutated only through phase machine steps.
type Session struct {
	ID               string              `json:"id"`
	Patient          PatientContext      `json:"patient"`
	RiskFactors      []RiskFactor        `json:"risk_factors,omitempty"`
	RiskWarnings     []string            `json:"risk_warnings,omitempty"`
	Phase            Phase               `json:"phase"`
	Status           SessionStatus       `json:"status"`
	AskedQuestions   []string            `json:"asked_questions,omitempty"`
	Responses        []Response          `json:"responses,omitempty"`
	EvidenceLog      []SymptomEvidence   `json:"evidence_log,omitempty"`
	Candidates       []CandidateDisorder `json:"candidates,omitempty"`
	QuestionsInPhase int                 `json:"questions_in_phase"`
	PhaseHistory     []PhaseTransition   `json:"phase_history,omitempty"`
	KnowledgeVersion string              `json:"knowledge_version,omitempty"`
	CreatedAt        time.Time           `json:"created_at"`
	LastActivityAt   time.Time           `json:"last_activity_at"`
}

// WasAsked reports whether the question id is already in the asked list.
func (s *Session) WasAsked(questionID string) bool {
	for _, id := range s.AskedQuestions {
		if id == questionID {
			return true
		}
	}
	return false
}

// MarkAsked appends the question to the asked list exactly once.
func (s *Session) MarkAsked(questionID string) {
	if !s.WasAsked(questionID) {
		s.AskedQuestions = append(s.AskedQuestions, questionID)
	}
}

// Touch updates the last-activity timestamp.
func (s *Session) Touch(now time.Time) {
	s.LastActivityAt = now
}

// Report Models

// FinalReport is the terminal output of a completed session.
type FinalReport struct {
	SessionID               string            `json:"session_id"`
	TopCandidate            CandidateDisorder `json:"top_candidate"`
	Confidence              float64           `json:"confidence"`
	ContributingSymptoms    []SymptomEvidence `json:"contributing_symptoms"`
	ContributingRiskFactors []RiskFactor      `json:"contributing_risk_factors"`
	Urgency                 UrgencyClass      `json:"urgency"`
	RecommendedAction       string            `json:"recommended_action"`
	PhaseHistory            []PhaseTransition `json:"phase_history"`
	Warnings                []string          `json:"warnings,omitempty"`
	KnowledgeVersion        string            `json:"knowledge_version,omitempty"`
	GeneratedAt             time.Time         `json:"generated_at"`
}

// Configuration Models

// Config is the main application configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Store     StoreConfig     `mapstructure:"store"`
	Knowledge KnowledgeConfig `mapstructure:"knowledge"`
	Engine    EngineConfig    `mapstructure:"engine"`
	Session   SessionConfig   `mapstructure:"session"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig is the HTTP server configuration.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	RateLimitPerSec float64       `mapstructure:"rate_limit_per_sec"`
	RateLimitBurst  int           `mapstructure:"rate_limit_burst"`
}

// StoreConfig selects and configures the session store backend.
type StoreConfig struct {
	Backend     string        `mapstructure:"backend"` // memory, sqlite, redis, postgres
	SQLitePath  string        `mapstructure:"sqlite_path"`
	RedisURL    string        `mapstructure:"redis_url"`
	RedisTTL    time.Duration `mapstructure:"redis_ttl"`
	PostgresURL string        `mapstructure:"postgres_url"`
	Migrations  string        `mapstructure:"migrations"`
}

// KnowledgeConfig locates the knowledge base document.
type KnowledgeConfig struct {
	Path          string `mapstructure:"path"`
	CacheMaxItems int    `mapstructure:"cache_max_items"`
}

// EngineConfig holds the deterministic scoring contract and per-phase rules.
type EngineConfig struct {
	SymptomWeight     float64              `mapstructure:"symptom_weight"`
	RiskWeight        float64              `mapstructure:"risk_weight"`
	ConsistencyWeight float64              `mapstructure:"consistency_weight"`
	AtypicalPenalty   float64              `mapstructure:"atypical_penalty"`
	Phases            map[string]PhaseRule `mapstructure:"phases"`
}

// PhaseRule is the per-phase narrowing configuration. The numeric values are
// configuration rather than hard-coded constants.
type PhaseRule struct {
	TargetCount         int      `mapstructure:"target_count"`
	AdvanceCeiling      int      `mapstructure:"advance_ceiling"`
	MinQuestions        int      `mapstructure:"min_questions"`
	MinDifferential     int      `mapstructure:"min_differential"`
	CoverageCategories  []string `mapstructure:"coverage_categories"`
	MinCategoryCoverage int      `mapstructure:"min_category_coverage"`
}

// SessionConfig holds lifecycle policy applied by the session manager.
type SessionConfig struct {
	ExpiryTimeout time.Duration `mapstructure:"expiry_timeout"`
}

// LoggingConfig is the logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}
