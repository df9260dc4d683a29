package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	logx "chungus/pkg/logx"
)

func openTestStore(t *testing.T) Store {
	t.Helper()
	st, err := Open(Config{Driver: "file", Path: filepath.Join(t.TempDir(), "store")}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestDefaultGuildIdempotent(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	ctx := context.Background()

	if err := st.DefaultGuild(ctx, "g1"); err != nil {
		t.Fatalf("DefaultGuild: %v", err)
	}
	rec, err := st.RetrieveGuild(ctx, "g1")
	if err != nil {
		t.Fatalf("RetrieveGuild: %v", err)
	}
	if rec == nil || rec.UnsafeMode || rec.AntiRaid || len(rec.BanCache) != 0 || len(rec.RaidCache.BannedUsers) != 0 {
		t.Fatalf("unexpected default record: %+v", rec)
	}

	// Customize, then call DefaultGuild again: must not reset.
	rec.AntiRaid = true
	rec.BanCache = []string{"u1"}
	if err := st.InsertGuild(ctx, "g1", rec); err != nil {
		t.Fatalf("InsertGuild: %v", err)
	}
	if err := st.DefaultGuild(ctx, "g1"); err != nil {
		t.Fatalf("DefaultGuild: %v", err)
	}
	got, err := st.RetrieveGuild(ctx, "g1")
	if err != nil {
		t.Fatalf("RetrieveGuild: %v", err)
	}
	if !got.AntiRaid || len(got.BanCache) != 1 {
		t.Fatalf("DefaultGuild overwrote a customized record: %+v", got)
	}
}

func TestRetrieveAbsentGuild(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)

	rec, err := st.RetrieveGuild(context.Background(), "nope")
	if err != nil {
		t.Fatalf("absent guild must not be an error: %v", err)
	}
	if rec != nil {
		t.Fatalf("expected nil record, got %+v", rec)
	}
}

func TestInsertReplacesWholesale(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	ctx := context.Background()

	if err := st.InsertGuild(ctx, "g1", &GuildRecord{AntiRaid: true, BanCache: []string{"a", "b"}}); err != nil {
		t.Fatalf("InsertGuild: %v", err)
	}
	if err := st.InsertGuild(ctx, "g1", &GuildRecord{UnsafeMode: true}); err != nil {
		t.Fatalf("InsertGuild: %v", err)
	}
	rec, err := st.RetrieveGuild(ctx, "g1")
	if err != nil {
		t.Fatalf("RetrieveGuild: %v", err)
	}
	if rec.AntiRaid || len(rec.BanCache) != 0 || !rec.UnsafeMode {
		t.Fatalf("insert must replace, not merge: %+v", rec)
	}
}

func TestRemoveGuild(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	ctx := context.Background()

	if err := st.InsertGuild(ctx, "g1", &GuildRecord{AntiRaid: true}); err != nil {
		t.Fatalf("InsertGuild: %v", err)
	}
	if err := st.RemoveGuild(ctx, "g1"); err != nil {
		t.Fatalf("RemoveGuild: %v", err)
	}
	rec, err := st.RetrieveGuild(ctx, "g1")
	if err != nil || rec != nil {
		t.Fatalf("expected absent after remove, got rec=%+v err=%v", rec, err)
	}
	// Removing again is a no-op, not an error.
	if err := st.RemoveGuild(ctx, "g1"); err != nil {
		t.Fatalf("second RemoveGuild: %v", err)
	}
}

func TestRetrieveReturnsSnapshot(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	ctx := context.Background()

	if err := st.InsertGuild(ctx, "g1", &GuildRecord{BanCache: []string{"u1"}}); err != nil {
		t.Fatalf("InsertGuild: %v", err)
	}
	a, _ := st.RetrieveGuild(ctx, "g1")
	a.BanCache = append(a.BanCache, "u2")

	b, _ := st.RetrieveGuild(ctx, "g1")
	if len(b.BanCache) != 1 {
		t.Fatalf("caller mutation leaked into the store: %v", b.BanCache)
	}
}

func TestGuildsSurviveReopen(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "store")
	ctx := context.Background()

	st, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := st.InsertGuild(ctx, "g1", &GuildRecord{AntiRaid: true, RaidCache: RaidCache{BannedUsers: []string{"u1"}}}); err != nil {
		t.Fatalf("InsertGuild: %v", err)
	}
	if err := st.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	st2, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer st2.Close()
	rec, err := st2.RetrieveGuild(ctx, "g1")
	if err != nil {
		t.Fatalf("RetrieveGuild: %v", err)
	}
	if rec == nil || !rec.AntiRaid || len(rec.RaidCache.BannedUsers) != 1 {
		t.Fatalf("record did not survive reopen: %+v", rec)
	}
}

func TestAuditAppendAndRecent(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	ctx := context.Background()

	for i, guild := range []string{"g1", "g2", "g1"} {
		e := AuditEntry{
			At:      time.Now().Add(time.Duration(i) * time.Second),
			GuildID: guild,
			UserID:  "u1",
			Action:  "ban",
			OK:      true,
		}
		if err := st.AppendAudit(ctx, e); err != nil {
			t.Fatalf("AppendAudit: %v", err)
		}
	}

	got, err := st.RecentAudit(ctx, "g1", 10)
	if err != nil {
		t.Fatalf("RecentAudit: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d entries for g1, want 2", len(got))
	}
	for _, e := range got {
		if e.GuildID != "g1" || e.Action != "ban" {
			t.Fatalf("unexpected entry: %+v", e)
		}
	}
}

func TestAuditPrune(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	ctx := context.Background()
	now := time.Now()

	old := AuditEntry{At: now.Add(-48 * time.Hour), GuildID: "g1", Action: "kick"}
	fresh := AuditEntry{At: now, GuildID: "g1", Action: "ban"}
	if err := st.AppendAudit(ctx, old); err != nil {
		t.Fatalf("AppendAudit: %v", err)
	}
	if err := st.AppendAudit(ctx, fresh); err != nil {
		t.Fatalf("AppendAudit: %v", err)
	}

	removed, err := st.PruneAudit(ctx, now.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("PruneAudit: %v", err)
	}
	if removed != 1 {
		t.Fatalf("removed = %d, want 1", removed)
	}

	got, err := st.RecentAudit(ctx, "g1", 10)
	if err != nil {
		t.Fatalf("RecentAudit: %v", err)
	}
	if len(got) != 1 || got[0].Action != "ban" {
		t.Fatalf("unexpected survivors: %+v", got)
	}

	// Appending still works after compaction reopened the handle.
	if err := st.AppendAudit(ctx, AuditEntry{At: now, GuildID: "g1", Action: "kick"}); err != nil {
		t.Fatalf("AppendAudit after prune: %v", err)
	}
}

func TestUnknownDriver(t *testing.T) {
	t.Parallel()
	if _, err := Open(Config{Driver: "bolt", Path: "x"}, logx.Nop()); err == nil {
		t.Fatal("expected error for unknown driver")
	}
}
