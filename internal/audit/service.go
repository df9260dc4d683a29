// Package audit persists a trail of moderation actions and prunes it on
// a schedule.
package audit

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"chungus/internal/eventbus"
	"chungus/internal/storage"
	logx "chungus/pkg/logx"
)

const defaultPruneSchedule = "17 4 * * *"

type Config struct {
	Enabled   bool
	Retention time.Duration // 0 disables pruning

	// PruneSchedule is a cron spec; empty uses the default.
	PruneSchedule string
}

// Service consumes moderation events off the bus and writes audit rows.
// It owns a cron schedule that trims entries past the retention window.
type Service struct {
	cfg   Config
	store storage.Store
	bus   eventbus.Bus
	log   logx.Logger

	mu     sync.Mutex
	cron   *cron.Cron
	unsub  func()
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(cfg Config, store storage.Store, bus eventbus.Bus, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{cfg: cfg, store: store, bus: bus, log: log}
}

func (s *Service) Start(ctx context.Context) error {
	if !s.cfg.Enabled || s.store == nil || s.bus == nil {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	runCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	ch, unsub := s.bus.Subscribe(128)
	s.unsub = unsub

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			select {
			case <-runCtx.Done():
				return
			case e, ok := <-ch:
				if !ok {
					return
				}
				s.record(runCtx, e)
			}
		}
	}()

	if s.cfg.Retention > 0 {
		spec := s.cfg.PruneSchedule
		if spec == "" {
			spec = defaultPruneSchedule
		}
		c := cron.New()
		if _, err := c.AddFunc(spec, func() { s.prune(runCtx) }); err != nil {
			cancel()
			unsub()
			return err
		}
		c.Start()
		s.cron = c
	}

	s.log.Info("audit trail enabled",
		logx.Duration("retention", s.cfg.Retention))
	return nil
}

func (s *Service) record(ctx context.Context, e eventbus.Event) {
	entry := storage.AuditEntry{
		At:        e.Time,
		GuildID:   e.GuildID,
		UserID:    e.UserID,
		ChannelID: e.ChannelID,
		Action:    string(e.Kind),
		Reason:    e.Reason,
		OK:        e.OK,
		Error:     e.Err,
		Detail:    e.Detail,
	}
	wctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := s.store.AppendAudit(wctx, entry); err != nil {
		s.log.Warn("audit append failed", logx.Err(err))
	}
}

func (s *Service) prune(ctx context.Context) {
	cutoff := time.Now().Add(-s.cfg.Retention)
	pctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	n, err := s.store.PruneAudit(pctx, cutoff)
	if err != nil {
		s.log.Warn("audit prune failed", logx.Err(err))
		return
	}
	if n > 0 {
		s.log.Info("pruned audit entries", logx.Int64("removed", n))
	}
}

func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	unsub := s.unsub
	s.unsub = nil
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()

	if c != nil {
		<-c.Stop().Done()
	}
	if unsub != nil {
		unsub()
	}
	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
	return nil
}
