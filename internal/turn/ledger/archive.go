package ledger

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/cadencevoice/cadence/pkg/Logger"
	"github.com/go-redis/redis"
	"github.com/google/uuid"
)

const archiveTTL = 7 * 24 * time.Hour

// Archiver persists a session's judgment history to redis on teardown so
// interruption audits outlive the process. The hot path never touches it.
type Archiver struct {
	client *redis.Client
	logger *Logger.Logger
}

func NewArchiver(client *redis.Client, logger *Logger.Logger) *Archiver {
	return &Archiver{client: client, logger: logger}
}

func archiveKey(sessionID uuid.UUID) string {
	return fmt.Sprintf("ledger:%s", sessionID)
}

// Archive writes every entry of the session's ledger as a JSON list item.
func (a *Archiver) Archive(sessionID uuid.UUID, l *Ledger) error {
	entries := l.Recent(l.Len())
	if len(entries) == 0 {
		return nil
	}

	key := archiveKey(sessionID)
	vals := make([]interface{}, 0, len(entries))
	for _, e := range entries {
		raw, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("failed to marshal ledger entry: %w", err)
		}
		vals = append(vals, raw)
	}

	if err := a.client.RPush(key, vals...).Err(); err != nil {
		return fmt.Errorf("failed to archive ledger for session %s: %w", sessionID, err)
	}
	if err := a.client.Expire(key, archiveTTL).Err(); err != nil {
		a.logger.Warnf("failed to set ledger archive TTL for session %s: %v", sessionID, err)
	}

	a.logger.Infof("archived %d ledger entries for session %s", len(entries), sessionID)
	return nil
}
