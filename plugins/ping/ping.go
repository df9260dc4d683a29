package ping

import (
	"context"

	"chungus/internal/core"
)

// Commands returns the liveness command set.
func Commands() []core.Command {
	return []core.Command{
		{
			Name:        "ping",
			Description: "check that the bot is alive",
			Usage:       "!ping",
			Handle: func(ctx context.Context, req *core.Request) error {
				return req.Actions.Reply(ctx, req.Msg.ChannelID, "pong")
			},
		},
	}
}
