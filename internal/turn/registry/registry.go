package registry

import (
	"context"
	"errors"
	"sync"

	"github.com/cadencevoice/cadence/internal/turn/ledger"
	"github.com/cadencevoice/cadence/internal/turn/orchestrator"
	"github.com/cadencevoice/cadence/pkg/Logger"
	"github.com/google/uuid"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionExists   = errors.New("session already registered")
)

type session struct {
	orch   *orchestrator.Orchestrator
	cancel context.CancelFunc
}

// Registry tracks the live orchestrators, one per connected session. Teardown
// cancels the session context and archives the judgment ledger.
type Registry struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]*session
	archiver *ledger.Archiver
	logger   *Logger.Logger
}

func New(archiver *ledger.Archiver, logger *Logger.Logger) *Registry {
	return &Registry{
		sessions: make(map[uuid.UUID]*session),
		archiver: archiver,
		logger:   logger,
	}
}

func (r *Registry) Register(o *orchestrator.Orchestrator, cancel context.CancelFunc) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := o.SessionID()
	if _, ok := r.sessions[id]; ok {
		return ErrSessionExists
	}
	r.sessions[id] = &session{orch: o, cancel: cancel}
	r.logger.Infof("session %s registered (%d live)", id, len(r.sessions))
	return nil
}

func (r *Registry) Get(id uuid.UUID) (*orchestrator.Orchestrator, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s.orch, nil
}

// Remove tears the session down: the orchestrator goroutine is canceled and
// the ledger is shipped to the archive. Removing an unknown session is a
// no-op error so disconnect races stay harmless.
func (r *Registry) Remove(id uuid.UUID) error {
	r.mu.Lock()
	s, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
	}
	remaining := len(r.sessions)
	r.mu.Unlock()

	if !ok {
		return ErrSessionNotFound
	}

	s.cancel()
	if r.archiver != nil {
		if err := r.archiver.Archive(id, s.orch.Ledger()); err != nil {
			r.logger.Warnf("ledger archive failed for session %s: %v", id, err)
		}
	}
	r.logger.Infof("session %s removed (%d live)", id, remaining)
	return nil
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Stats snapshots every live session for the diagnostics endpoint.
func (r *Registry) Stats() []map[string]interface{} {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]map[string]interface{}, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s.orch.Stats())
	}
	return out
}
