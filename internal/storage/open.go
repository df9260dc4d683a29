package storage

import (
	"context"
	"errors"
	"strings"
	"time"

	logx "chungus/pkg/logx"
)

// Store is the persistence API for guild records and the audit trail.
//
// Guild semantics:
//   - DefaultGuild is idempotent and never overwrites an existing record.
//   - RetrieveGuild returns (nil, nil) when the guild is unknown; a
//     non-nil error always means the store itself failed, so callers can
//     tell "no record" and "store down" apart.
//   - InsertGuild replaces the stored record wholesale (last-writer-wins).
//   - RemoveGuild is idempotent.
//
// Every operation persists durably before returning. Fetched records are
// snapshots; mutations must be written back via InsertGuild.
type Store interface {
	DefaultGuild(ctx context.Context, guildID string) error
	RetrieveGuild(ctx context.Context, guildID string) (*GuildRecord, error)
	InsertGuild(ctx context.Context, guildID string, rec *GuildRecord) error
	RemoveGuild(ctx context.Context, guildID string) error

	AppendAudit(ctx context.Context, e AuditEntry) error
	RecentAudit(ctx context.Context, guildID string, limit int) ([]AuditEntry, error)
	PruneAudit(ctx context.Context, olderThan time.Time) (int64, error)

	Close() error
}

// Open initializes the configured store.
func Open(cfg Config, log logx.Logger) (Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + cfg.Driver)
	}
}
