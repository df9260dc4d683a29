// Package moderation provides the operator commands for the per-guild
// protective state: anti-raid, unsafe mode, and the ban caches.
package moderation

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"chungus/internal/core"
	"chungus/internal/storage"
)

// listCap bounds how many IDs a cache listing prints in one reply.
const listCap = 25

func Commands() []core.Command {
	return []core.Command{
		{
			Name:        "antiraid",
			Description: "toggle auto-banning of new joins",
			Usage:       "!antiraid on|off|status",
			Handle:      toggleFlag("anti-raid", "!antiraid on|off|status", getAntiRaid, setAntiRaid),
		},
		{
			Name:        "unsafemode",
			Description: "toggle suppression of automatic webhook deletion",
			Usage:       "!unsafemode on|off|status",
			Handle:      toggleFlag("unsafe mode", "!unsafemode on|off|status", getUnsafeMode, setUnsafeMode),
		},
		{
			Name:        "bancache",
			Description: "inspect or clear the tracked external bans",
			Usage:       "!bancache list|clear",
			Handle:      handleBanCache,
		},
		{
			Name:        "raidcache",
			Description: "list users banned by anti-raid",
			Usage:       "!raidcache list",
			Handle:      handleRaidCache,
		},
		{
			Name:        "modlog",
			Description: "show recent moderation actions",
			Usage:       "!modlog [n]",
			Handle:      handleModlog,
		},
	}
}

func getAntiRaid(rec *storage.GuildRecord) bool      { return rec.AntiRaid }
func setAntiRaid(rec *storage.GuildRecord, v bool)   { rec.AntiRaid = v }
func getUnsafeMode(rec *storage.GuildRecord) bool    { return rec.UnsafeMode }
func setUnsafeMode(rec *storage.GuildRecord, v bool) { rec.UnsafeMode = v }

func toggleFlag(label, usage string, get func(*storage.GuildRecord) bool, set func(*storage.GuildRecord, bool)) core.HandlerFunc {
	return func(ctx context.Context, req *core.Request) error {
		rec, err := fetch(ctx, req)
		if err != nil {
			return err
		}

		arg := ""
		if len(req.Args) > 0 {
			arg = strings.ToLower(req.Args[0])
		}
		switch arg {
		case "on", "off":
			want := arg == "on"
			if get(rec) != want {
				set(rec, want)
				if err := req.Store.InsertGuild(ctx, req.Msg.GuildID, rec); err != nil {
					return err
				}
			}
			return req.Actions.Reply(ctx, req.Msg.ChannelID,
				fmt.Sprintf("%s is now %s", label, onOff(want)))
		case "", "status":
			return req.Actions.Reply(ctx, req.Msg.ChannelID,
				fmt.Sprintf("%s is %s", label, onOff(get(rec))))
		default:
			return req.Actions.Reply(ctx, req.Msg.ChannelID, "usage: "+usage)
		}
	}
}

func handleBanCache(ctx context.Context, req *core.Request) error {
	rec, err := fetch(ctx, req)
	if err != nil {
		return err
	}

	arg := ""
	if len(req.Args) > 0 {
		arg = strings.ToLower(req.Args[0])
	}
	switch arg {
	case "clear":
		n := len(rec.BanCache)
		if n > 0 {
			rec.BanCache = nil
			if err := req.Store.InsertGuild(ctx, req.Msg.GuildID, rec); err != nil {
				return err
			}
		}
		return req.Actions.Reply(ctx, req.Msg.ChannelID,
			fmt.Sprintf("cleared %d tracked bans", n))
	case "", "list":
		return req.Actions.Reply(ctx, req.Msg.ChannelID,
			formatIDs("tracked bans", rec.BanCache))
	default:
		return req.Actions.Reply(ctx, req.Msg.ChannelID, "usage: !bancache list|clear")
	}
}

func handleRaidCache(ctx context.Context, req *core.Request) error {
	rec, err := fetch(ctx, req)
	if err != nil {
		return err
	}
	return req.Actions.Reply(ctx, req.Msg.ChannelID,
		formatIDs("anti-raid bans", rec.RaidCache.BannedUsers))
}

func handleModlog(ctx context.Context, req *core.Request) error {
	limit := 10
	if len(req.Args) > 0 {
		if n, err := strconv.Atoi(req.Args[0]); err == nil && n > 0 && n <= 50 {
			limit = n
		}
	}
	entries, err := req.Store.RecentAudit(ctx, req.Msg.GuildID, limit)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return req.Actions.Reply(ctx, req.Msg.ChannelID, "no recorded moderation actions")
	}

	var b strings.Builder
	for _, e := range entries {
		fmt.Fprintf(&b, "%s %s", e.At.Format("2006-01-02 15:04"), e.Action)
		if e.UserID != "" {
			fmt.Fprintf(&b, " user=%s", e.UserID)
		}
		if e.Reason != "" {
			fmt.Fprintf(&b, " (%s)", e.Reason)
		}
		if !e.OK {
			b.WriteString(" [failed]")
		}
		b.WriteByte('\n')
	}
	return req.Actions.Reply(ctx, req.Msg.ChannelID, strings.TrimRight(b.String(), "\n"))
}

// fetch returns the guild record, which the dispatcher guarantees to
// exist before any handler runs.
func fetch(ctx context.Context, req *core.Request) (*storage.GuildRecord, error) {
	rec, err := req.Store.RetrieveGuild(ctx, req.Msg.GuildID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, errors.New("guild record missing")
	}
	return rec, nil
}

func formatIDs(label string, ids []string) string {
	if len(ids) == 0 {
		return "no " + label
	}
	shown := ids
	suffix := ""
	if len(shown) > listCap {
		shown = shown[:listCap]
		suffix = fmt.Sprintf(" (+%d more)", len(ids)-listCap)
	}
	return fmt.Sprintf("%d %s: %s%s", len(ids), label, strings.Join(shown, ", "), suffix)
}

func onOff(v bool) string {
	if v {
		return "on"
	}
	return "off"
}
