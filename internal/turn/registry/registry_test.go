package registry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cadencevoice/cadence/internal/turn/ledger"
	"github.com/cadencevoice/cadence/internal/turn/orchestrator"
	"github.com/cadencevoice/cadence/internal/types"
	"github.com/cadencevoice/cadence/pkg/Logger"
	"github.com/google/uuid"
)

type nullSink struct{}

func (nullSink) PublishUserState(ctx context.Context, st types.UserState) error {
	return nil
}

func (nullSink) PublishPreReply(ctx context.Context, sessionID uuid.UUID, turnID uint64, text string) error {
	return nil
}

func newOrchestrator() *orchestrator.Orchestrator {
	logger := Logger.New(true)
	return orchestrator.New(
		uuid.New(),
		orchestrator.Config{SilenceThreshold: 300 * time.Millisecond},
		nil,
		nil,
		ledger.New(),
		nil,
		nullSink{},
		logger,
	)
}

func TestRegisterAndGet(t *testing.T) {
	r := New(nil, Logger.New(true))
	o := newOrchestrator()
	_, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := r.Register(o, cancel); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if r.Count() != 1 {
		t.Errorf("Expected one live session, got %d", r.Count())
	}

	got, err := r.Get(o.SessionID())
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got != o {
		t.Errorf("Get returned a different orchestrator")
	}
}

func TestRegisterRejectsDuplicate(t *testing.T) {
	r := New(nil, Logger.New(true))
	o := newOrchestrator()
	_, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := r.Register(o, cancel); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if err := r.Register(o, cancel); !errors.Is(err, ErrSessionExists) {
		t.Errorf("Expected ErrSessionExists, got %v", err)
	}
}

func TestRemoveCancelsSession(t *testing.T) {
	r := New(nil, Logger.New(true))
	o := newOrchestrator()
	ctx, cancel := context.WithCancel(context.Background())

	if err := r.Register(o, cancel); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if err := r.Remove(o.SessionID()); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}

	select {
	case <-ctx.Done():
	default:
		t.Errorf("Remove must cancel the session context")
	}
	if _, err := r.Get(o.SessionID()); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Expected ErrSessionNotFound after removal, got %v", err)
	}
	if err := r.Remove(o.SessionID()); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Double remove should report ErrSessionNotFound, got %v", err)
	}
}

func TestStatsSnapshotsLiveSessions(t *testing.T) {
	r := New(nil, Logger.New(true))
	for i := 0; i < 3; i++ {
		_, cancel := context.WithCancel(context.Background())
		defer cancel()
		if err := r.Register(newOrchestrator(), cancel); err != nil {
			t.Fatalf("Register failed: %v", err)
		}
	}

	stats := r.Stats()
	if len(stats) != 3 {
		t.Fatalf("Expected stats for three sessions, got %d", len(stats))
	}
	for _, s := range stats {
		if s["state"] != orchestrator.StateListening {
			t.Errorf("Fresh session should be listening, got %v", s["state"])
		}
	}
}
