// Package discord adapts the Discord gateway (discordgo) to the
// transport-neutral kit boundary.
package discord

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/bwmarrin/discordgo"

	"chungus/internal/kit"
	logx "chungus/pkg/logx"
)

type Config struct {
	Token  string
	Status string // optional presence text
}

type Adapter struct {
	log  logx.Logger
	sess *discordgo.Session

	status string

	mu      sync.Mutex
	ev      kit.Events
	runCtx  context.Context
	cancel  context.CancelFunc
	removes []func()
}

func New(cfg Config, log logx.Logger) (*Adapter, error) {
	token := strings.TrimSpace(cfg.Token)
	if token == "" {
		return nil, errors.New("discord token is required")
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	sess, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, err
	}
	sess.Identify.Intents = discordgo.IntentGuilds |
		discordgo.IntentGuildMembers |
		discordgo.IntentGuildModeration |
		discordgo.IntentGuildWebhooks |
		discordgo.IntentGuildMessages |
		discordgo.IntentMessageContent

	return &Adapter{log: log, sess: sess, status: cfg.Status}, nil
}

// Start registers the event bindings and opens the gateway connection.
// discordgo invokes each handler on its own goroutine, so events for
// different guilds are naturally concurrent.
func (a *Adapter) Start(ctx context.Context, ev kit.Events) error {
	a.mu.Lock()
	a.ev = ev
	a.runCtx, a.cancel = context.WithCancel(context.WithoutCancel(ctx))

	a.removes = []func(){
		a.sess.AddHandler(a.onReady),
		a.sess.AddHandler(a.onGuildCreate),
		a.sess.AddHandler(a.onGuildDelete),
		a.sess.AddHandler(a.onMemberAdd),
		a.sess.AddHandler(a.onBanAdd),
		a.sess.AddHandler(a.onWebhooksUpdate),
		a.sess.AddHandler(a.onMessageCreate),
	}
	a.mu.Unlock()

	return a.sess.Open()
}

func (a *Adapter) Stop(ctx context.Context) error {
	a.mu.Lock()
	removes := a.removes
	a.removes = nil
	cancel := a.cancel
	a.cancel = nil
	a.mu.Unlock()

	for _, rm := range removes {
		rm()
	}
	if cancel != nil {
		cancel()
	}
	return a.sess.Close()
}

func (a *Adapter) eventCtx() context.Context {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.runCtx != nil {
		return a.runCtx
	}
	return context.Background()
}

// ---- inbound events ----

func (a *Adapter) onReady(s *discordgo.Session, r *discordgo.Ready) {
	a.log.Info("logged in",
		logx.String("user", r.User.Username),
		logx.Int("guilds", len(r.Guilds)))
	if a.status != "" {
		_ = s.UpdateGameStatus(0, a.status)
	}
}

func (a *Adapter) onGuildCreate(_ *discordgo.Session, g *discordgo.GuildCreate) {
	if g.Guild == nil || a.ev.GuildCreate == nil {
		return
	}
	a.ev.GuildCreate(a.eventCtx(), g.ID)
}

func (a *Adapter) onGuildDelete(_ *discordgo.Session, g *discordgo.GuildDelete) {
	if g.Guild == nil || a.ev.GuildDelete == nil {
		return
	}
	// Unavailable means a guild outage, not a removal.
	if g.Unavailable {
		return
	}
	a.ev.GuildDelete(a.eventCtx(), g.ID)
}

func (a *Adapter) onMemberAdd(_ *discordgo.Session, m *discordgo.GuildMemberAdd) {
	if m.Member == nil || m.User == nil || a.ev.MemberAdd == nil {
		return
	}
	a.ev.MemberAdd(a.eventCtx(), m.GuildID, m.User.ID)
}

func (a *Adapter) onBanAdd(_ *discordgo.Session, b *discordgo.GuildBanAdd) {
	if b.User == nil || a.ev.BanAdd == nil {
		return
	}
	a.ev.BanAdd(a.eventCtx(), b.GuildID, b.User.ID)
}

func (a *Adapter) onWebhooksUpdate(_ *discordgo.Session, w *discordgo.WebhooksUpdate) {
	if a.ev.WebhookUpdate == nil {
		return
	}
	a.ev.WebhookUpdate(a.eventCtx(), w.GuildID, w.ChannelID)
}

func (a *Adapter) onMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || a.ev.MessageCreate == nil {
		return
	}
	// Ignore bots, including ourselves.
	if m.Author.Bot {
		return
	}
	if s.State != nil && s.State.User != nil && m.Author.ID == s.State.User.ID {
		return
	}
	a.ev.MessageCreate(a.eventCtx(), kit.Message{
		ID:        m.ID,
		GuildID:   m.GuildID,
		ChannelID: m.ChannelID,
		AuthorID:  m.Author.ID,
		Content:   m.Content,
	})
}

// ---- outbound actions ----

func (a *Adapter) BanMember(ctx context.Context, guildID, userID, reason string) error {
	return a.sess.GuildBanCreateWithReason(guildID, userID, reason, 0, discordgo.WithContext(ctx))
}

func (a *Adapter) KickMember(ctx context.Context, guildID, userID string) error {
	return a.sess.GuildMemberDelete(guildID, userID, discordgo.WithContext(ctx))
}

func (a *Adapter) ChannelWebhooks(ctx context.Context, channelID string) ([]kit.Webhook, error) {
	hooks, err := a.sess.ChannelWebhooks(channelID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, err
	}
	out := make([]kit.Webhook, 0, len(hooks))
	for _, h := range hooks {
		if h == nil {
			continue
		}
		out = append(out, kit.Webhook{ID: h.ID, Name: h.Name})
	}
	return out, nil
}

func (a *Adapter) DeleteWebhook(ctx context.Context, webhookID string) error {
	return a.sess.WebhookDelete(webhookID, discordgo.WithContext(ctx))
}

func (a *Adapter) Reply(ctx context.Context, channelID, text string) error {
	_, err := a.sess.ChannelMessageSend(channelID, text, discordgo.WithContext(ctx))
	return err
}
