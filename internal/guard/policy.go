// Package guard implements the moderation rules: anti-raid bans,
// ban-evasion kicks, and defensive webhook deletion.
//
// The decision logic is pure functions over a GuildRecord snapshot so it
// can be tested without a store or a gateway; the Reactor supplies the
// fetch/act/persist glue.
package guard

import (
	"slices"

	"chungus/internal/storage"
)

// BanReasonAntiRaid is the audit-log reason attached to anti-raid bans.
const BanReasonAntiRaid = "anti-raid enabled"

type Verdict int

const (
	VerdictNone Verdict = iota
	VerdictBan
	VerdictKick
)

func (v Verdict) String() string {
	switch v {
	case VerdictBan:
		return "ban"
	case VerdictKick:
		return "kick"
	default:
		return "none"
	}
}

// ShouldPurgeWebhooks reports whether every webhook in an updated
// channel should be deleted. A guild with no record gets the protective
// default; unsafe mode is the explicit per-guild opt-out.
func ShouldPurgeWebhooks(rec *storage.GuildRecord) bool {
	return rec == nil || !rec.UnsafeMode
}

// JoinVerdict decides what happens to a newly joined member.
// Anti-raid wins over ban-evasion; an absent record means no special
// handling.
func JoinVerdict(rec *storage.GuildRecord, userID string) Verdict {
	switch {
	case rec == nil:
		return VerdictNone
	case rec.AntiRaid:
		return VerdictBan
	case slices.Contains(rec.BanCache, userID):
		return VerdictKick
	default:
		return VerdictNone
	}
}

// RecordRaidBan marks userID as banned by the bot's own anti-raid
// action. Call only after the ban succeeded; the raid cache must mean
// "bans we actually performed" for the RecordExternalBan exemption to
// hold. Reports whether the record changed.
func RecordRaidBan(rec *storage.GuildRecord, userID string) bool {
	if rec == nil || slices.Contains(rec.RaidCache.BannedUsers, userID) {
		return false
	}
	rec.RaidCache.BannedUsers = append(rec.RaidCache.BannedUsers, userID)
	return true
}

// RecordExternalBan tracks an externally observed ban so a later rejoin
// is caught as ban evasion. Users the bot banned itself via anti-raid
// are exempt; re-recording them would cause false-positive kicks after
// the raid mode is lifted. Reports whether the record changed.
func RecordExternalBan(rec *storage.GuildRecord, userID string) bool {
	if rec == nil {
		return false
	}
	if slices.Contains(rec.RaidCache.BannedUsers, userID) {
		return false
	}
	if slices.Contains(rec.BanCache, userID) {
		return false
	}
	rec.BanCache = append(rec.BanCache, userID)
	return true
}
