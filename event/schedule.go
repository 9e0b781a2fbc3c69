package event

// ToDo: Scheduler.Pause for maintenance windows.

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/gorhill/cronexpr"
)

// A FireFunc runs one scheduled tick.  The bot layer typically emits
// a synthetic "schedule:<name>" event here.
type FireFunc func(ctx context.Context, name string) error

// cronEntry is one armed cron schedule.
type cronEntry struct {
	name string
	expr *cronexpr.Expression
	ctl  chan bool
}

// A Scheduler arms cron expressions and calls a FireFunc at each
// tick.  Entries re-arm themselves until removed or stopped.
type Scheduler struct {
	// Errors receives firing failures when set; otherwise they're
	// logged.
	Errors chan error `json:"-" yaml:"-"`

	fire FireFunc

	mu      sync.Mutex
	entries map[string]*cronEntry
	ctl     chan bool
}

func NewScheduler(fire FireFunc) *Scheduler {
	return &Scheduler{
		fire:    fire,
		entries: make(map[string]*cronEntry, 8),
		ctl:     make(chan bool),
	}
}

// Add parses the cron expression (with optional seconds field) and
// arms it under the given name.  Re-adding a name replaces the old
// schedule.
func (s *Scheduler) Add(ctx context.Context, name, cron string) error {
	expr, err := cronexpr.Parse(cron)
	if err != nil {
		return fmt.Errorf("schedule %q: %w", name, err)
	}

	ent := &cronEntry{
		name: name,
		expr: expr,
		ctl:  make(chan bool),
	}

	s.mu.Lock()
	if old, have := s.entries[name]; have {
		close(old.ctl)
	}
	s.entries[name] = ent
	s.mu.Unlock()

	go s.loop(ctx, ent)
	return nil
}

func (s *Scheduler) loop(ctx context.Context, ent *cronEntry) {
	for {
		next := ent.expr.Next(time.Now())
		if next.IsZero() {
			s.remove(ent)
			return
		}
		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			s.remove(ent)
			return
		case <-ent.ctl:
			timer.Stop()
			return
		case <-s.ctl:
			timer.Stop()
			return
		case <-timer.C:
			if err := s.fire(ctx, ent.name); err != nil {
				s.err(fmt.Errorf("schedule %q: %w", ent.name, err))
			}
		}
	}
}

// Remove disarms a schedule, reporting whether the name was known.
func (s *Scheduler) Remove(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	ent, have := s.entries[name]
	if !have {
		return false
	}
	delete(s.entries, name)
	close(ent.ctl)
	return true
}

// remove drops an entry if it is still the armed one for its name.
func (s *Scheduler) remove(ent *cronEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, have := s.entries[ent.name]; have && cur == ent {
		delete(s.entries, ent.name)
	}
}

// Names lists armed schedules, sorted.
func (s *Scheduler) Names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	acc := make([]string, 0, len(s.entries))
	for name := range s.entries {
		acc = append(acc, name)
	}
	sort.Strings(acc)
	return acc
}

// Stop disarms everything.  The scheduler is done afterward.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	select {
	case <-s.ctl:
	default:
		close(s.ctl)
	}
	s.entries = make(map[string]*cronEntry)
}

func (s *Scheduler) err(err error) {
	if s.Errors != nil {
		s.Errors <- err
	} else {
		log.Println(err)
	}
}
