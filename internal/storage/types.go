package storage

import (
	"slices"
	"time"
)

// Config configures storage.
//
// Driver values:
//   - "file": dependency-free file backend (guild snapshot + audit jsonl)
//   - "sqlite": SQLite database file
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// GuildRecord is the protective state kept for one guild.
//
// The zero value is the default state for a freshly joined guild:
// webhook deletion on, anti-raid off, empty caches.
type GuildRecord struct {
	// UnsafeMode suppresses automatic webhook deletion while true.
	UnsafeMode bool `json:"unsafeMode"`

	// AntiRaid bans every newly joining member while true.
	AntiRaid bool `json:"antiRaid"`

	// RaidCache tracks users banned by the bot's own anti-raid action,
	// to keep them out of BanCache.
	RaidCache RaidCache `json:"raidCache"`

	// BanCache tracks externally banned users; a rejoin while listed is
	// treated as ban evasion and kicked.
	BanCache []string `json:"banCache"`
}

type RaidCache struct {
	BannedUsers []string `json:"bannedUsers"`
}

// Clone returns a deep copy. Stores hand out copies so callers can
// mutate freely and write back explicitly.
func (r *GuildRecord) Clone() *GuildRecord {
	if r == nil {
		return nil
	}
	cp := *r
	cp.RaidCache.BannedUsers = slices.Clone(r.RaidCache.BannedUsers)
	cp.BanCache = slices.Clone(r.BanCache)
	return &cp
}

// AuditEntry records one moderation action.
// Keep it compact and schema-stable.
type AuditEntry struct {
	At        time.Time
	GuildID   string
	UserID    string
	ChannelID string
	Action    string
	Reason    string
	OK        bool
	Error     string
	Detail    string
}
