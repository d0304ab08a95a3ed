// Package session owns the lifecycle of analysis sessions: creation,
// persistence through the pluggable session store, per-session request
// serialization and inactivity expiry.
package session

import (
	"context"
	"errors"
	"hash/fnv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/apdpe/prediction-engine/internal/domain"
	"github.com/apdpe/prediction-engine/internal/engine"
	"github.com/apdpe/prediction-engine/internal/knowledge"
)

// StartResult is the outcome of creating a session: the identifier, the
// first screening question and any degraded-risk warnings.
type StartResult struct {
	SessionID     string           `json:"session_id"`
	FirstQuestion *domain.Question `json:"first_question"`
	Warnings      []string         `json:"warnings,omitempty"`
}

// sessionLockStripes sizes the fixed lock table. A session id always hashes
// to the same stripe, so the one-in-flight-request-per-session discipline
// holds with bounded memory no matter how many sessions come and go.
const sessionLockStripes = 128

// Manager is the thin integration glue between the engine and the session
// store. Within a session, operations are a strict sequential loop; the
// manager enforces one in-flight request per session id.
type Manager struct {
	logger  *logrus.Logger
	store   domain.SessionStore
	kb      *knowledge.Provider
	machine *engine.PhaseMachine
	expiry  time.Duration

	locks [sessionLockStripes]sync.Mutex
}

// NewManager creates a session lifecycle manager.
func NewManager(logger *logrus.Logger, store domain.SessionStore, kb *knowledge.Provider, machine *engine.PhaseMachine, cfg domain.SessionConfig) *Manager {
	expiry := cfg.ExpiryTimeout
	if expiry <= 0 {
		expiry = 30 * time.Minute
	}
	return &Manager{
		logger:  logger,
		store:   store,
		kb:      kb,
		machine: machine,
		expiry:  expiry,
	}
}

// StartSession creates a session from a patient context snapshot and returns
// the first question. Creation fails fatally when the knowledge base is
// unavailable or yields no applicable initial question; no partial session
// is persisted in either case.
func (m *Manager) StartSession(ctx context.Context, patient domain.PatientContext) (*StartResult, error) {
	if m.kb == nil || len(m.kb.Disorders()) == 0 {
		return nil, domain.NewEngineError(domain.ErrCodeKnowledgeBase,
			"knowledge base is unavailable", "")
	}

	risks, degraded := engine.DeriveRiskFactors(patient)
	warnings := make([]string, 0, len(degraded))
	for _, w := range degraded {
		warnings = append(warnings, w.String())
	}

	now := time.Now().UTC()
	sess := &domain.Session{
		ID:               uuid.NewString(),
		Patient:          patient,
		RiskFactors:      risks,
		RiskWarnings:     warnings,
		Phase:            domain.SCREENING,
		Status:           domain.ACTIVE,
		KnowledgeVersion: m.kb.Version(),
		CreatedAt:        now,
		LastActivityAt:   now,
	}

	first := m.machine.Bootstrap(sess, m.kb)
	if first == nil {
		return nil, domain.NewEngineError(domain.ErrCodeKnowledgeBase,
			"question bank yields no applicable initial question", "")
	}

	if err := m.store.Save(ctx, sess); err != nil {
		return nil, domain.NewEngineError(domain.ErrCodeStore,
			"failed to persist new session", err.Error())
	}

	m.logger.WithFields(logrus.Fields{
		"session_id":     sess.ID,
		"risk_factors":   len(risks),
		"risk_warnings":  len(warnings),
		"first_question": first.ID,
	}).Info("Session started")

	return &StartResult{
		SessionID:     sess.ID,
		FirstQuestion: first,
		Warnings:      warnings,
	}, nil
}

// SubmitResponses feeds one or more responses into the session's phase
// machine and persists the updated state. Validation failures leave the
// session unchanged and are retryable.
func (m *Manager) SubmitResponses(ctx context.Context, sessionID string, responses []domain.Response) (*engine.StepOutcome, error) {
	if len(responses) == 0 {
		return nil, domain.NewEngineError(domain.ErrCodeInvalidInput,
			"at least one response is required", "")
	}

	lock := m.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	sess, err := m.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if err := m.checkWritable(ctx, sess); err != nil {
		return nil, err
	}

	outcome, err := m.machine.Step(sess, responses, m.kb)
	if err != nil {
		// Rejected input: the session was left untouched, nothing to save.
		return nil, err
	}

	sess.Touch(time.Now().UTC())
	if err := m.store.Save(ctx, sess); err != nil {
		return nil, domain.NewEngineError(domain.ErrCodeStore,
			"failed to persist session state", err.Error())
	}

	return outcome, nil
}

// GetSession returns a read-only snapshot of the session. The session lock
// is held so the lazy expiry write cannot race a concurrent submit and
// clobber freshly persisted state under last-write-wins.
func (m *Manager) GetSession(ctx context.Context, sessionID string) (*domain.Session, error) {
	lock := m.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	sess, err := m.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.Status == domain.ACTIVE && m.expired(sess) {
		// Lazy expiry: mark abandoned on first observation.
		sess.Status = domain.ABANDONED
		if err := m.store.Save(ctx, sess); err != nil {
			m.logger.WithError(err).WithField("session_id", sessionID).Warn("Failed to persist session expiry")
		}
	}
	return sess, nil
}

// DeleteSession removes the session from the store.
func (m *Manager) DeleteSession(ctx context.Context, sessionID string) error {
	lock := m.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	if err := m.store.Delete(ctx, sessionID); err != nil {
		return domain.NewEngineError(domain.ErrCodeStore,
			"failed to delete session", err.Error())
	}
	m.logger.WithField("session_id", sessionID).Info("Session deleted")
	return nil
}

// load fetches a session, translating store misses into the taxonomy.
func (m *Manager) load(ctx context.Context, sessionID string) (*domain.Session, error) {
	sess, err := m.store.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) || errors.Is(err, domain.ErrNotFound) {
			return nil, domain.NewEngineError(domain.ErrCodeSessionNotFound,
				"session not found: "+sessionID, "")
		}
		return nil, domain.NewEngineError(domain.ErrCodeStore,
			"failed to load session", err.Error())
	}
	return sess, nil
}

// checkWritable enforces terminal-status and expiry policy before mutation.
func (m *Manager) checkWritable(ctx context.Context, sess *domain.Session) error {
	if sess.Status.IsTerminal() {
		return domain.NewEngineError(domain.ErrCodeSessionTerminal,
			"session is terminal and accepts no further responses",
			"status="+sess.Status.String())
	}
	if m.expired(sess) {
		sess.Status = domain.ABANDONED
		if err := m.store.Save(ctx, sess); err != nil {
			m.logger.WithError(err).WithField("session_id", sess.ID).Warn("Failed to persist session expiry")
		}
		return domain.NewEngineError(domain.ErrCodeSessionExpired,
			"session expired after inactivity; start a new session", "")
	}
	return nil
}

// expired reports whether the inactivity timeout has elapsed.
func (m *Manager) expired(sess *domain.Session) bool {
	return time.Since(sess.LastActivityAt) > m.expiry
}

// sessionLock returns the stripe mutex serializing operations for a
// session id.
func (m *Manager) sessionLock(sessionID string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(sessionID))
	return &m.locks[h.Sum32()%sessionLockStripes]
}
