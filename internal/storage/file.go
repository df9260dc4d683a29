package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	logx "chungus/pkg/logx"
)

// fileStore is a dependency-free persistence backend.
//
// Files:
//   - <prefix>.guilds.json (snapshot of all guild records, rewritten atomically)
//   - <prefix>.audit.jsonl (append-only JSON Lines)
type fileStore struct {
	log logx.Logger

	mu sync.Mutex

	guildsPath string
	guilds     map[string]*GuildRecord

	auditPath string
	auditFile *os.File
}

type auditRecord struct {
	At        time.Time `json:"at"`
	GuildID   string    `json:"guild_id"`
	UserID    string    `json:"user_id,omitempty"`
	ChannelID string    `json:"channel_id,omitempty"`
	Action    string    `json:"action"`
	Reason    string    `json:"reason,omitempty"`
	OK        bool      `json:"ok"`
	Error     string    `json:"err,omitempty"`
	Detail    string    `json:"detail,omitempty"`
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}

	dir := filepath.Dir(path)
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	prefix := filepath.Join(dir, base)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	s := &fileStore{
		log:        log,
		guildsPath: prefix + ".guilds.json",
		auditPath:  prefix + ".audit.jsonl",
		guilds:     map[string]*GuildRecord{},
	}

	if err := s.loadGuilds(); err != nil {
		return nil, err
	}

	af, err := os.OpenFile(s.auditPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}
	s.auditFile = af
	return s, nil
}

func (s *fileStore) loadGuilds() error {
	b, err := os.ReadFile(s.guildsPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	if len(b) == 0 {
		return nil
	}
	return json.Unmarshal(b, &s.guilds)
}

// saveGuildsLocked rewrites the snapshot via tmp+rename so a crash never
// leaves a truncated file. Caller holds mu.
func (s *fileStore) saveGuildsLocked() error {
	b, err := json.MarshalIndent(s.guilds, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.guildsPath + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, s.guildsPath)
}

func (s *fileStore) DefaultGuild(ctx context.Context, guildID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.guilds[guildID]; ok {
		return nil
	}
	s.guilds[guildID] = &GuildRecord{}
	return s.saveGuildsLocked()
}

func (s *fileStore) RetrieveGuild(ctx context.Context, guildID string) (*GuildRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.guilds[guildID]
	if !ok {
		return nil, nil
	}
	return rec.Clone(), nil
}

func (s *fileStore) InsertGuild(ctx context.Context, guildID string, rec *GuildRecord) error {
	if rec == nil {
		rec = &GuildRecord{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.guilds[guildID] = rec.Clone()
	return s.saveGuildsLocked()
}

func (s *fileStore) RemoveGuild(ctx context.Context, guildID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.guilds[guildID]; !ok {
		return nil
	}
	delete(s.guilds, guildID)
	return s.saveGuildsLocked()
}

func (s *fileStore) AppendAudit(ctx context.Context, e AuditEntry) error {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	b, err := json.Marshal(auditRecord(e))
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.auditFile == nil {
		return errors.New("store closed")
	}
	if _, err := s.auditFile.Write(append(b, '\n')); err != nil {
		return err
	}
	return s.auditFile.Sync()
}

func (s *fileStore) RecentAudit(ctx context.Context, guildID string, limit int) ([]AuditEntry, error) {
	if limit <= 0 {
		limit = 10
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.auditPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []AuditEntry
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		var rec auditRecord
		if err := json.Unmarshal(sc.Bytes(), &rec); err != nil {
			continue // tolerate a torn trailing line
		}
		if guildID != "" && rec.GuildID != guildID {
			continue
		}
		out = append(out, AuditEntry(rec))
		if len(out) > limit {
			out = out[1:]
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *fileStore) PruneAudit(ctx context.Context, olderThan time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.auditPath)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	var kept [][]byte
	var removed int64
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := append([]byte(nil), sc.Bytes()...)
		var rec auditRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			removed++
			continue
		}
		if rec.At.Before(olderThan) {
			removed++
			continue
		}
		kept = append(kept, line)
	}
	scanErr := sc.Err()
	_ = f.Close()
	if scanErr != nil {
		return 0, scanErr
	}
	if removed == 0 {
		return 0, nil
	}

	tmp := s.auditPath + ".tmp"
	w, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return 0, err
	}
	for _, line := range kept {
		if _, err := w.Write(append(line, '\n')); err != nil {
			_ = w.Close()
			return 0, err
		}
	}
	if err := w.Close(); err != nil {
		return 0, err
	}
	if err := os.Rename(tmp, s.auditPath); err != nil {
		return 0, err
	}

	// Reopen the append handle against the compacted file.
	if s.auditFile != nil {
		_ = s.auditFile.Close()
	}
	af, err := os.OpenFile(s.auditPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return removed, err
	}
	s.auditFile = af
	return removed, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.auditFile == nil {
		return nil
	}
	err := s.auditFile.Close()
	s.auditFile = nil
	return err
}
