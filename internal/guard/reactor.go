package guard

import (
	"context"
	"fmt"

	"chungus/internal/eventbus"
	"chungus/internal/kit"
	"chungus/internal/storage"
	logx "chungus/pkg/logx"
)

// Reactor binds gateway events to (fetch record -> decide -> act ->
// persist). Records are fetched fresh per event, never cached across
// events, so flag changes take effect immediately.
//
// Failure policy: outbound actions (ban/kick/webhook delete) are
// best-effort; a rejected action is logged and never aborts the
// bookkeeping around it, except that a failed anti-raid ban is not
// recorded in the raid cache. Only store failures propagate to the
// caller.
type Reactor struct {
	store storage.Store
	acts  kit.Actions
	bus   eventbus.Bus
	log   logx.Logger

	locks guildLocks
}

func NewReactor(store storage.Store, acts kit.Actions, bus eventbus.Bus, log logx.Logger) *Reactor {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Reactor{store: store, acts: acts, bus: bus, log: log}
}

// HandleWebhookUpdate deletes every webhook in the updated channel
// unless the guild opted out via unsafe mode. The event fires for edits
// as well as creations, which is exactly why the opt-out exists.
func (r *Reactor) HandleWebhookUpdate(ctx context.Context, guildID, channelID string) error {
	if guildID == "" || channelID == "" {
		r.log.Debug("dropping malformed webhook event")
		return nil
	}

	rec, err := r.store.RetrieveGuild(ctx, guildID)
	if err != nil {
		return err
	}
	if !ShouldPurgeWebhooks(rec) {
		return nil
	}

	hooks, err := r.acts.ChannelWebhooks(ctx, channelID)
	if err != nil {
		r.log.Warn("webhook listing failed",
			logx.String("guild", guildID), logx.String("channel", channelID), logx.Err(err))
		return nil
	}
	if len(hooks) == 0 {
		return nil
	}

	deleted := 0
	for _, h := range hooks {
		if err := r.acts.DeleteWebhook(ctx, h.ID); err != nil {
			r.log.Warn("webhook delete failed",
				logx.String("guild", guildID), logx.String("webhook", h.ID), logx.Err(err))
			continue
		}
		deleted++
	}

	r.publish(eventbus.Event{
		Kind:      eventbus.KindWebhookPurge,
		GuildID:   guildID,
		ChannelID: channelID,
		OK:        deleted == len(hooks),
		Detail:    fmt.Sprintf("deleted %d/%d webhooks", deleted, len(hooks)),
	})
	r.log.Info("purged webhooks",
		logx.String("guild", guildID), logx.String("channel", channelID),
		logx.Int("deleted", deleted), logx.Int("found", len(hooks)))
	return nil
}

// HandleMemberAdd bans new members while anti-raid is on and kicks
// known ban-evaders. A guild without a record gets no special handling.
func (r *Reactor) HandleMemberAdd(ctx context.Context, guildID, userID string) error {
	if guildID == "" || userID == "" {
		r.log.Debug("dropping malformed member event")
		return nil
	}

	l := r.locks.lock(guildID)
	defer l.Unlock()

	rec, err := r.store.RetrieveGuild(ctx, guildID)
	if err != nil {
		return err
	}

	switch JoinVerdict(rec, userID) {
	case VerdictBan:
		banErr := r.acts.BanMember(ctx, guildID, userID, BanReasonAntiRaid)
		r.publish(eventbus.Event{
			Kind:    eventbus.KindBan,
			GuildID: guildID,
			UserID:  userID,
			Reason:  BanReasonAntiRaid,
			OK:      banErr == nil,
			Err:     errString(banErr),
		})
		if banErr != nil {
			// The raid cache only records bans that actually happened.
			r.log.Warn("anti-raid ban failed",
				logx.String("guild", guildID), logx.String("user", userID), logx.Err(banErr))
			return nil
		}
		r.log.Info("anti-raid ban",
			logx.String("guild", guildID), logx.String("user", userID))
		if RecordRaidBan(rec, userID) {
			return r.store.InsertGuild(ctx, guildID, rec)
		}
		return nil

	case VerdictKick:
		kickErr := r.acts.KickMember(ctx, guildID, userID)
		r.publish(eventbus.Event{
			Kind:    eventbus.KindKick,
			GuildID: guildID,
			UserID:  userID,
			Reason:  "ban evasion",
			OK:      kickErr == nil,
			Err:     errString(kickErr),
		})
		if kickErr != nil {
			r.log.Warn("ban-evasion kick failed",
				logx.String("guild", guildID), logx.String("user", userID), logx.Err(kickErr))
			return nil
		}
		r.log.Info("ban-evasion kick",
			logx.String("guild", guildID), logx.String("user", userID))
		return nil

	default:
		return nil
	}
}

// HandleBanAdd tracks externally issued bans in the ban cache so future
// rejoins are caught, exempting bans the bot performed itself.
func (r *Reactor) HandleBanAdd(ctx context.Context, guildID, userID string) error {
	if guildID == "" || userID == "" {
		r.log.Debug("dropping malformed ban event")
		return nil
	}

	l := r.locks.lock(guildID)
	defer l.Unlock()

	rec, err := r.store.RetrieveGuild(ctx, guildID)
	if err != nil {
		return err
	}
	if rec == nil {
		// Without a record we cannot check the raid exemption.
		return nil
	}
	if !RecordExternalBan(rec, userID) {
		return nil
	}
	r.log.Debug("recorded external ban",
		logx.String("guild", guildID), logx.String("user", userID))
	return r.store.InsertGuild(ctx, guildID, rec)
}

// HandleGuildCreate ensures a default record exists for a guild the bot
// joined (or sees at startup).
func (r *Reactor) HandleGuildCreate(ctx context.Context, guildID string) error {
	if guildID == "" {
		return nil
	}
	if err := r.store.DefaultGuild(ctx, guildID); err != nil {
		return err
	}
	r.publish(eventbus.Event{Kind: eventbus.KindGuildJoin, GuildID: guildID})
	return nil
}

// HandleGuildDelete drops the record when the bot leaves a guild.
func (r *Reactor) HandleGuildDelete(ctx context.Context, guildID string) error {
	if guildID == "" {
		return nil
	}
	if err := r.store.RemoveGuild(ctx, guildID); err != nil {
		return err
	}
	r.publish(eventbus.Event{Kind: eventbus.KindGuildLeave, GuildID: guildID})
	return nil
}

func (r *Reactor) publish(e eventbus.Event) {
	if r.bus != nil {
		r.bus.Publish(e)
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
