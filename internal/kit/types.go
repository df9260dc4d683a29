// Package kit holds the transport-neutral types shared between the
// gateway adapter and the core. The core depends only on these shapes,
// never on the Discord library directly.
package kit

import "context"

// Message is an incoming guild text message.
type Message struct {
	ID        string
	GuildID   string
	ChannelID string
	AuthorID  string
	Content   string
}

// Webhook identifies a channel-scoped webhook.
type Webhook struct {
	ID   string
	Name string
}

// Actions is the outbound side of the transport: every moderation side
// effect the core can request. Implementations may fail for transport
// reasons (missing permission, target already gone); callers decide
// locally whether a failure matters.
type Actions interface {
	BanMember(ctx context.Context, guildID, userID, reason string) error
	KickMember(ctx context.Context, guildID, userID string) error
	ChannelWebhooks(ctx context.Context, channelID string) ([]Webhook, error)
	DeleteWebhook(ctx context.Context, webhookID string) error
	Reply(ctx context.Context, channelID, text string) error
}

// Events is the inbound side: the adapter invokes these callbacks as
// gateway events arrive. Nil callbacks are skipped.
type Events struct {
	GuildCreate   func(ctx context.Context, guildID string)
	GuildDelete   func(ctx context.Context, guildID string)
	MemberAdd     func(ctx context.Context, guildID, userID string)
	BanAdd        func(ctx context.Context, guildID, userID string)
	WebhookUpdate func(ctx context.Context, guildID, channelID string)
	MessageCreate func(ctx context.Context, msg Message)
}

// Adapter is the lifecycle contract for a gateway transport.
type Adapter interface {
	Actions

	Start(ctx context.Context, ev Events) error
	Stop(ctx context.Context) error
}
