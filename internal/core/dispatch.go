package core

import (
	"context"
	"runtime/debug"
	"sort"
	"strings"
	"sync"

	"chungus/internal/eventbus"
	"chungus/internal/kit"
	"chungus/internal/storage"
	logx "chungus/pkg/logx"
)

type HandlerFunc func(ctx context.Context, req *Request) error

type Command struct {
	// Name is the routing key, matched case-insensitively against the
	// first token after the prefix.
	Name        string
	Description string
	Usage       string

	Handle HandlerFunc
}

// Request carries everything a command handler may need. Argument
// parsing beyond whitespace splitting is the handler's own business.
type Request struct {
	Msg  kit.Message
	Args []string // whitespace-split remainder
	Rest string   // raw remainder, uninterpreted

	Store   storage.Store
	Actions kit.Actions
	Log     logx.Logger
}

// Dispatcher routes prefixed text messages to registered commands.
//
// Routing: a message is a candidate iff it starts with the prefix; the
// command name is the lowercased text between the prefix and the first
// whitespace. Unknown names are silently ignored. Before a handler
// runs, a default guild record is ensured so handlers can assume one
// exists.
type Dispatcher struct {
	mu     sync.RWMutex
	cmds   map[string]Command
	prefix string

	store storage.Store
	acts  kit.Actions
	bus   eventbus.Bus
	log   logx.Logger
}

func NewDispatcher(store storage.Store, acts kit.Actions, bus eventbus.Bus, log logx.Logger, prefix string) *Dispatcher {
	if prefix == "" {
		prefix = "!"
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Dispatcher{
		cmds:   map[string]Command{},
		prefix: prefix,
		store:  store,
		acts:   acts,
		bus:    bus,
		log:    log,
	}
}

// Register adds commands to the registry. A duplicate name overwrites
// the prior handler.
func (d *Dispatcher) Register(cmds ...Command) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, c := range cmds {
		name := strings.ToLower(strings.TrimSpace(c.Name))
		if name == "" || c.Handle == nil {
			continue
		}
		d.cmds[name] = c
	}
}

// Commands returns the registered commands sorted by name.
func (d *Dispatcher) Commands() []Command {
	d.mu.RLock()
	out := make([]Command, 0, len(d.cmds))
	for _, c := range d.cmds {
		out = append(out, c)
	}
	d.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// SetPrefix swaps the command prefix. Safe during hot reload.
func (d *Dispatcher) SetPrefix(p string) {
	if p == "" {
		return
	}
	d.mu.Lock()
	d.prefix = p
	d.mu.Unlock()
}

func (d *Dispatcher) Prefix() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.prefix
}

// Dispatch routes one message. The returned error is only ever a store
// failure; handler errors and panics are logged and terminal here.
func (d *Dispatcher) Dispatch(ctx context.Context, msg kit.Message) error {
	if msg.GuildID == "" {
		return nil
	}

	d.mu.RLock()
	prefix := d.prefix
	d.mu.RUnlock()

	if !strings.HasPrefix(msg.Content, prefix) || len(msg.Content) == len(prefix) {
		return nil
	}

	body := msg.Content[len(prefix):]
	name := body
	rest := ""
	if i := strings.IndexAny(body, " \t\r\n"); i >= 0 {
		name, rest = body[:i], strings.TrimSpace(body[i+1:])
	}
	name = strings.ToLower(name)

	d.mu.RLock()
	cmd, ok := d.cmds[name]
	d.mu.RUnlock()
	if !ok {
		return nil
	}

	// Handlers may assume a record exists for their guild.
	if err := d.store.DefaultGuild(ctx, msg.GuildID); err != nil {
		return err
	}

	if d.bus != nil {
		d.bus.Publish(eventbus.Event{
			Kind:      eventbus.KindCommand,
			GuildID:   msg.GuildID,
			UserID:    msg.AuthorID,
			ChannelID: msg.ChannelID,
			Detail:    name,
			OK:        true,
		})
	}

	req := &Request{
		Msg:     msg,
		Args:    strings.Fields(rest),
		Rest:    rest,
		Store:   d.store,
		Actions: d.acts,
		Log:     d.log.With(logx.String("cmd", name)),
	}

	defer func() {
		if rec := recover(); rec != nil {
			d.log.Error("command handler panicked",
				logx.String("cmd", name),
				logx.Any("panic", rec),
				logx.String("stack", string(debug.Stack())))
		}
	}()
	if err := cmd.Handle(ctx, req); err != nil {
		d.log.Warn("command failed",
			logx.String("cmd", name),
			logx.String("guild", msg.GuildID),
			logx.Err(err))
	}
	return nil
}
