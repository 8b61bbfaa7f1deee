package tracker

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"crypto-dashboard/indicators"
	"crypto-dashboard/models"
	"crypto-dashboard/observability"
	"crypto-dashboard/services"
)

// ErrNotRunning is returned by Subscribe after Stop
var ErrNotRunning = errors.New("tracker is stopped")

// DefaultPollSchedule polls every subscription once a minute
const DefaultPollSchedule = "@every 60s"

// maxConcurrentPolls bounds how many sessions poll their source at once
const maxConcurrentPolls = 4

// Streamer produces live candles for a subscription
type Streamer interface {
	Subscribe(ctx context.Context, symbol string, interval models.TimeInterval) <-chan models.Candle
}

// SchedulerConfig configures the polling scheduler
type SchedulerConfig struct {
	// PollSchedule is a robfig/cron spec, e.g. "@every 60s"
	PollSchedule string
	Session      SessionConfig
}

type subscription struct {
	session *Session
	cancel  context.CancelFunc
}

// Scheduler owns the live sessions and polls them on a cron schedule. When a
// Streamer is set every new session also consumes its candle stream.
type Scheduler struct {
	source   services.CandleSource
	streamer Streamer
	calc     *indicators.Calculator
	cfg      SchedulerConfig
	cron     *cron.Cron

	mu      sync.RWMutex
	subs    map[string]*subscription
	ctx     context.Context
	cancel  context.CancelFunc
	started bool
	stopped bool
}

// NewScheduler creates a Scheduler. streamer may be nil.
func NewScheduler(source services.CandleSource, streamer Streamer, calc *indicators.Calculator, cfg SchedulerConfig) *Scheduler {
	if cfg.PollSchedule == "" {
		cfg.PollSchedule = DefaultPollSchedule
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		source:   source,
		streamer: streamer,
		calc:     calc,
		cfg:      cfg,
		cron:     cron.New(),
		subs:     make(map[string]*subscription),
		ctx:      ctx,
		cancel:   cancel,
	}
}

func subscriptionKey(symbol string, interval models.TimeInterval) string {
	return strings.ToUpper(symbol) + ":" + string(interval)
}

// Start registers the poll job and starts the cron scheduler
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return ErrNotRunning
	}
	if s.started {
		return nil
	}

	if _, err := s.cron.AddFunc(s.cfg.PollSchedule, func() { s.PollAll(s.ctx) }); err != nil {
		return fmt.Errorf("register poll job %q: %w", s.cfg.PollSchedule, err)
	}
	s.started = true
	s.cron.Start()

	observability.Info("tracker started", "schedule", s.cfg.PollSchedule, "streaming", s.streamer != nil)
	return nil
}

// Stop halts polling, cancels every stream and waits for a running poll to finish
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	s.cancel()
	for key, sub := range s.subs {
		sub.cancel()
		delete(s.subs, key)
	}
	s.mu.Unlock()

	<-s.cron.Stop().Done()
	observability.GetMetrics().SetActiveSubscriptions(0)
	observability.Info("tracker stopped")
}

// Subscribe starts tracking symbol at interval. The session is bootstrapped
// with a full window before it is registered; an existing session is returned
// as is.
func (s *Scheduler) Subscribe(ctx context.Context, symbol string, interval models.TimeInterval) (*Session, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return nil, fmt.Errorf("symbol is required")
	}
	if !interval.Valid() {
		return nil, fmt.Errorf("unsupported interval %q", interval)
	}

	key := subscriptionKey(symbol, interval)
	s.mu.RLock()
	existing, ok := s.subs[key]
	stopped := s.stopped
	s.mu.RUnlock()
	if stopped {
		return nil, ErrNotRunning
	}
	if ok {
		return existing.session, nil
	}

	session := NewSession(symbol, interval, s.source, s.calc, s.cfg.Session)
	if err := session.Bootstrap(ctx); err != nil {
		return nil, fmt.Errorf("subscribe %s %s: %w", symbol, interval, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return nil, ErrNotRunning
	}
	// a concurrent Subscribe may have won the race
	if existing, ok := s.subs[key]; ok {
		return existing.session, nil
	}

	subCtx, cancel := context.WithCancel(s.ctx)
	s.subs[key] = &subscription{session: session, cancel: cancel}
	if s.streamer != nil {
		go session.Consume(subCtx, s.streamer.Subscribe(subCtx, symbol, interval))
	}

	observability.GetMetrics().SetActiveSubscriptions(len(s.subs))
	observability.WithSubscription(symbol, string(interval)).Info("subscription added", "candles", session.Status().Candles)
	return session, nil
}

// Unsubscribe stops tracking symbol at interval and reports whether it was tracked
func (s *Scheduler) Unsubscribe(symbol string, interval models.TimeInterval) bool {
	key := subscriptionKey(symbol, interval)

	s.mu.Lock()
	defer s.mu.Unlock()

	sub, ok := s.subs[key]
	if !ok {
		return false
	}
	sub.cancel()
	delete(s.subs, key)

	observability.GetMetrics().SetActiveSubscriptions(len(s.subs))
	observability.WithSubscription(symbol, string(interval)).Info("subscription removed")
	return true
}

// Session returns the live session for symbol and interval, if tracked
func (s *Scheduler) Session(symbol string, interval models.TimeInterval) (*Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sub, ok := s.subs[subscriptionKey(symbol, interval)]
	if !ok {
		return nil, false
	}
	return sub.session, true
}

// Subscriptions lists the tracked sessions ordered by symbol and interval
func (s *Scheduler) Subscriptions() []SessionStatus {
	s.mu.RLock()
	sessions := make([]*Session, 0, len(s.subs))
	for _, sub := range s.subs {
		sessions = append(sessions, sub.session)
	}
	s.mu.RUnlock()

	out := make([]SessionStatus, 0, len(sessions))
	for _, session := range sessions {
		out = append(out, session.Status())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Symbol != out[j].Symbol {
			return out[i].Symbol < out[j].Symbol
		}
		return out[i].Interval.Duration() < out[j].Interval.Duration()
	})
	return out
}

// PollAll polls every session once. Failures are logged by the sessions and
// never stop the other polls.
func (s *Scheduler) PollAll(ctx context.Context) {
	s.mu.RLock()
	sessions := make([]*Session, 0, len(s.subs))
	for _, sub := range s.subs {
		sessions = append(sessions, sub.session)
	}
	s.mu.RUnlock()

	if len(sessions) == 0 {
		return
	}

	var g errgroup.Group
	g.SetLimit(maxConcurrentPolls)
	for _, session := range sessions {
		g.Go(func() error {
			_ = session.Poll(ctx)
			return nil
		})
	}
	_ = g.Wait()

	observability.Debug("tracker poll complete", "sessions", len(sessions))
}
