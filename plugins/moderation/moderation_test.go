package moderation

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"chungus/internal/core"
	"chungus/internal/kit"
	"chungus/internal/storage"
	logx "chungus/pkg/logx"
)

type fakeStore struct {
	mu     sync.Mutex
	recs   map[string]*storage.GuildRecord
	audits []storage.AuditEntry
}

func newFakeStore() *fakeStore {
	return &fakeStore{recs: map[string]*storage.GuildRecord{}}
}

func (s *fakeStore) DefaultGuild(ctx context.Context, guildID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.recs[guildID]; !ok {
		s.recs[guildID] = &storage.GuildRecord{}
	}
	return nil
}

func (s *fakeStore) RetrieveGuild(ctx context.Context, guildID string) (*storage.GuildRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.recs[guildID]
	if !ok {
		return nil, nil
	}
	return rec.Clone(), nil
}

func (s *fakeStore) InsertGuild(ctx context.Context, guildID string, rec *storage.GuildRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recs[guildID] = rec.Clone()
	return nil
}

func (s *fakeStore) RemoveGuild(ctx context.Context, guildID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.recs, guildID)
	return nil
}

func (s *fakeStore) AppendAudit(ctx context.Context, e storage.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audits = append(s.audits, e)
	return nil
}

func (s *fakeStore) RecentAudit(ctx context.Context, guildID string, limit int) ([]storage.AuditEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []storage.AuditEntry
	for _, e := range s.audits {
		if guildID == "" || e.GuildID == guildID {
			out = append(out, e)
		}
	}
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (s *fakeStore) PruneAudit(ctx context.Context, olderThan time.Time) (int64, error) {
	return 0, nil
}
func (s *fakeStore) Close() error { return nil }

type replyActions struct {
	mu      sync.Mutex
	replies []string
}

func (a *replyActions) BanMember(ctx context.Context, guildID, userID, reason string) error {
	return nil
}
func (a *replyActions) KickMember(ctx context.Context, guildID, userID string) error { return nil }
func (a *replyActions) ChannelWebhooks(ctx context.Context, channelID string) ([]kit.Webhook, error) {
	return nil, nil
}
func (a *replyActions) DeleteWebhook(ctx context.Context, webhookID string) error { return nil }
func (a *replyActions) Reply(ctx context.Context, channelID, text string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.replies = append(a.replies, text)
	return nil
}

func (a *replyActions) last(t *testing.T) string {
	t.Helper()
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.replies) == 0 {
		t.Fatal("expected a reply")
	}
	return a.replies[len(a.replies)-1]
}

func dispatcherWith(store storage.Store, acts kit.Actions) *core.Dispatcher {
	d := core.NewDispatcher(store, acts, nil, logx.Nop(), "!")
	d.Register(Commands()...)
	return d
}

func send(t *testing.T, d *core.Dispatcher, content string) {
	t.Helper()
	m := kit.Message{GuildID: "g1", ChannelID: "c1", AuthorID: "op", Content: content}
	if err := d.Dispatch(context.Background(), m); err != nil {
		t.Fatalf("Dispatch(%q): %v", content, err)
	}
}

func TestAntiRaidToggle(t *testing.T) {
	t.Parallel()
	store := newFakeStore()
	acts := &replyActions{}
	d := dispatcherWith(store, acts)

	send(t, d, "!antiraid on")
	rec, _ := store.RetrieveGuild(context.Background(), "g1")
	if !rec.AntiRaid {
		t.Fatal("anti-raid should be on")
	}
	if got := acts.last(t); !strings.Contains(got, "on") {
		t.Fatalf("reply = %q", got)
	}

	send(t, d, "!antiraid off")
	rec, _ = store.RetrieveGuild(context.Background(), "g1")
	if rec.AntiRaid {
		t.Fatal("anti-raid should be off")
	}

	send(t, d, "!antiraid status")
	if got := acts.last(t); !strings.Contains(got, "off") {
		t.Fatalf("status reply = %q", got)
	}
}

func TestUnsafeModeToggle(t *testing.T) {
	t.Parallel()
	store := newFakeStore()
	acts := &replyActions{}
	d := dispatcherWith(store, acts)

	send(t, d, "!unsafemode on")
	rec, _ := store.RetrieveGuild(context.Background(), "g1")
	if !rec.UnsafeMode {
		t.Fatal("unsafe mode should be on")
	}

	// Other flags untouched.
	if rec.AntiRaid || len(rec.BanCache) != 0 {
		t.Fatalf("unexpected side effects: %+v", rec)
	}
}

func TestBanCacheListAndClear(t *testing.T) {
	t.Parallel()
	store := newFakeStore()
	store.recs["g1"] = &storage.GuildRecord{BanCache: []string{"u1", "u2"}}
	acts := &replyActions{}
	d := dispatcherWith(store, acts)

	send(t, d, "!bancache list")
	if got := acts.last(t); !strings.Contains(got, "u1") || !strings.Contains(got, "u2") {
		t.Fatalf("list reply = %q", got)
	}

	send(t, d, "!bancache clear")
	rec, _ := store.RetrieveGuild(context.Background(), "g1")
	if len(rec.BanCache) != 0 {
		t.Fatalf("ban cache not cleared: %v", rec.BanCache)
	}
	if got := acts.last(t); !strings.Contains(got, "2") {
		t.Fatalf("clear reply = %q", got)
	}
}

func TestRaidCacheList(t *testing.T) {
	t.Parallel()
	store := newFakeStore()
	store.recs["g1"] = &storage.GuildRecord{RaidCache: storage.RaidCache{BannedUsers: []string{"u9"}}}
	acts := &replyActions{}
	d := dispatcherWith(store, acts)

	send(t, d, "!raidcache")
	if got := acts.last(t); !strings.Contains(got, "u9") {
		t.Fatalf("reply = %q", got)
	}
}

func TestModlog(t *testing.T) {
	t.Parallel()
	store := newFakeStore()
	store.audits = []storage.AuditEntry{
		{At: time.Now(), GuildID: "g1", UserID: "u1", Action: "ban", Reason: "anti-raid enabled", OK: true},
		{At: time.Now(), GuildID: "g2", UserID: "u2", Action: "kick", OK: true},
	}
	acts := &replyActions{}
	d := dispatcherWith(store, acts)

	send(t, d, "!modlog")
	got := acts.last(t)
	if !strings.Contains(got, "ban") || !strings.Contains(got, "u1") {
		t.Fatalf("modlog reply = %q", got)
	}
	if strings.Contains(got, "u2") {
		t.Fatalf("modlog leaked another guild's entries: %q", got)
	}
}

func TestModlogEmpty(t *testing.T) {
	t.Parallel()
	store := newFakeStore()
	acts := &replyActions{}
	d := dispatcherWith(store, acts)

	send(t, d, "!modlog")
	if got := acts.last(t); !strings.Contains(got, "no recorded") {
		t.Fatalf("reply = %q", got)
	}
}
