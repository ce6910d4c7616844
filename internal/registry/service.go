package registry

import (
	"fmt"
	"reflect"
	"sort"
	"sync"
	"time"

	"pacekit/internal/config"
	"pacekit/internal/eventbus"
	"pacekit/internal/journal"
	logx "pacekit/pkg/logx"
	"pacekit/pkg/pace"
)

// Service owns one limiter per configured rate budget and keeps the set in
// sync with config reloads. Unchanged limiters survive a reload with their
// queues intact; changed ones are closed and rebuilt.
type Service struct {
	log logx.Logger
	bus eventbus.Bus

	mu       sync.Mutex
	limiters map[string]*entry
	closed   bool
}

type entry struct {
	lim *pace.Limiter
	cfg config.LimiterConfig
}

func New(log logx.Logger, bus eventbus.Bus) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		log:      log,
		bus:      bus,
		limiters: map[string]*entry{},
	}
}

// Get returns the limiter for a named budget.
func (s *Service) Get(name string) (*pace.Limiter, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.limiters[name]
	if !ok {
		return nil, false
	}
	return e.lim, true
}

// Apply reconciles the limiter set against cfg.
func (s *Service) Apply(cfg *config.Config) error {
	if cfg == nil {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("registry closed")
	}

	want := map[string]config.LimiterConfig{}
	for _, lc := range cfg.Limiters {
		want[lc.Name] = lc
	}

	// Drop or rebuild existing limiters first.
	for name, e := range s.limiters {
		lc, keep := want[name]
		if keep && reflect.DeepEqual(e.cfg, lc) {
			delete(want, name)
			continue
		}
		e.lim.Close()
		delete(s.limiters, name)
		if !keep {
			s.log.Info("limiter removed", logx.String("limiter", name))
		}
	}

	// Build whatever is missing.
	for name, lc := range want {
		lim, err := s.buildLocked(lc)
		if err != nil {
			return err
		}
		s.limiters[name] = &entry{lim: lim, cfg: lc}
		s.log.Info("limiter ready",
			logx.String("limiter", name),
			logx.String("rate", lim.Rate().String()),
			logx.Duration("interval", lim.Interval()),
		)
	}
	return nil
}

func (s *Service) buildLocked(lc config.LimiterConfig) (*pace.Limiter, error) {
	r, err := lc.ParseRate()
	if err != nil {
		return nil, err
	}

	name := lc.Name
	opts := []pace.Option{
		pace.WithName(name),
		pace.WithLogger(s.log),
		pace.WithObserver(func(e pace.Execution) {
			s.publish(eventbus.TopicExecuted, journal.Entry{
				At:          e.StartedAt,
				Limiter:     name,
				Priority:    e.Priority,
				QueuedAt:    e.QueuedAt,
				WaitMS:      e.Wait.Milliseconds(),
				WindowCount: e.WindowCount,
			})
		}),
	}
	if lc.Burst != nil && lc.Burst.Enabled {
		fraction := lc.Burst.LimitAfter
		if fraction == 0 {
			fraction = pace.DefaultBurstAllowance
		}
		opts = append(opts,
			pace.WithBurstAllowance(fraction),
			pace.WithResetObserver(func(made int) {
				s.publish(eventbus.TopicWindowReset, journal.ResetEntry{
					At:           time.Now(),
					Limiter:      name,
					RequestsMade: made,
				})
			}),
		)
	}

	return pace.NewWithRate(r.Count, r.Unit.String(), opts...)
}

func (s *Service) publish(topic eventbus.Topic, data any) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(eventbus.Event{Topic: topic, Data: data})
}

// Snapshots returns diagnostic views of all limiters, sorted by name.
func (s *Service) Snapshots() []pace.Snapshot {
	s.mu.Lock()
	out := make([]pace.Snapshot, 0, len(s.limiters))
	for _, e := range s.limiters {
		out = append(out, e.lim.Snapshot())
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Close closes every limiter. The registry cannot be reused afterwards.
func (s *Service) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	for name, e := range s.limiters {
		e.lim.Close()
		delete(s.limiters, name)
	}
}
