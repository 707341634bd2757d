package arbitration

import (
	"log/slog"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

type Category string

const (
	CategoryRequestReceived Category = "request_received"
	CategoryOfferReceived   Category = "offer_received"
	CategoryOfferSent       Category = "offer_sent"
	CategoryOfferAccepted   Category = "offer_accepted"
	CategoryOfferDeclined   Category = "offer_declined"
	// CategoryLocalResult projects the transient LocalRequestState phases
	// (Result, Error, Cancelled); its expiry is driven by the machine.
	CategoryLocalResult Category = "local_result"
)

const (
	defaultRequestReceivedDuration = 5 * time.Second
	defaultOfferDuration           = 4 * time.Second
)

// SchedulerConfig overrides the auto-dismiss durations. The suppression and
// priority rules between categories are fixed regardless of durations.
type SchedulerConfig struct {
	RequestReceived time.Duration
	OfferSent       time.Duration
	OfferAccepted   time.Duration
	OfferDeclined   time.Duration
	OfferReceived   time.Duration
}

func (c SchedulerConfig) withDefaults() SchedulerConfig {
	if c.RequestReceived <= 0 {
		c.RequestReceived = defaultRequestReceivedDuration
	}
	if c.OfferSent <= 0 {
		c.OfferSent = defaultOfferDuration
	}
	if c.OfferAccepted <= 0 {
		c.OfferAccepted = defaultOfferDuration
	}
	if c.OfferDeclined <= 0 {
		c.OfferDeclined = defaultOfferDuration
	}
	if c.OfferReceived <= 0 {
		c.OfferReceived = 0 // an offer stays visible until answered
	}
	return c
}

type notification struct {
	payload any
	until   time.Time
	seq     uint64
	timer   *clock.Timer
}

// Scheduler maps arbitration transitions onto mutually exclusive,
// auto-expiring alert categories. A new event of the same category replaces
// its timer; it never stacks. offerReceived and requestReceived are
// role-exclusive and forcibly hide each other.
type Scheduler struct {
	mu     sync.Mutex
	clock  clock.Clock
	cfg    SchedulerConfig
	log    *slog.Logger
	active map[Category]*notification
	seq    uint64

	// OnChange fires after every visibility change. May be nil.
	OnChange func()
}

func NewScheduler(clk clock.Clock, cfg SchedulerConfig, log *slog.Logger) *Scheduler {
	if clk == nil {
		clk = clock.New()
	}
	if log == nil {
		log = slog.Default()
	}
	return &Scheduler{
		clock:  clk,
		cfg:    cfg.withDefaults(),
		log:    log.With("component", "notifier"),
		active: make(map[Category]*notification),
	}
}

// OnEvent makes a category visible. Role-exclusive suppression: an incoming
// offer hides a visible request banner and vice versa, and either clears a
// lingering local result so a stale approval/denial banner never sits under
// a fresh, unrelated alert.
func (s *Scheduler) OnEvent(cat Category, payload any) {
	s.mu.Lock()
	switch cat {
	case CategoryOfferReceived:
		s.hideLocked(CategoryRequestReceived)
		s.hideLocked(CategoryLocalResult)
	case CategoryRequestReceived:
		s.hideLocked(CategoryOfferReceived)
		s.hideLocked(CategoryLocalResult)
	}
	s.showLocked(cat, payload, s.duration(cat))
	s.mu.Unlock()
	s.changed()
}

// ShowLocalResult projects a transient LocalRequestState phase. Expiry is
// owned by the machine, so no timer is scheduled here; the projection stays
// until ClearLocalResult or a suppression event.
func (s *Scheduler) ShowLocalResult(st LocalRequestState) {
	s.mu.Lock()
	s.showLocked(CategoryLocalResult, st, 0)
	s.mu.Unlock()
	s.changed()
}

func (s *Scheduler) ClearLocalResult() {
	s.mu.Lock()
	s.hideLocked(CategoryLocalResult)
	s.mu.Unlock()
	s.changed()
}

// Dismiss hides one category immediately, e.g. an answered offer.
func (s *Scheduler) Dismiss(cat Category) {
	s.mu.Lock()
	s.hideLocked(cat)
	s.mu.Unlock()
	s.changed()
}

// ResetAll clears every category atomically, independent of running timers.
// Invoked on any controller-role flip.
func (s *Scheduler) ResetAll() {
	s.mu.Lock()
	for cat := range s.active {
		s.hideLocked(cat)
	}
	s.mu.Unlock()
	s.changed()
}

// ActiveCategories returns the currently visible categories.
func (s *Scheduler) ActiveCategories() map[Category]bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[Category]bool, len(s.active))
	for cat := range s.active {
		out[cat] = true
	}
	return out
}

// Payload returns the payload of a visible category.
func (s *Scheduler) Payload(cat Category) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.active[cat]
	if !ok {
		return nil, false
	}
	return n.payload, true
}

func (s *Scheduler) showLocked(cat Category, payload any, d time.Duration) {
	s.hideLocked(cat)
	s.seq++
	n := &notification{payload: payload, seq: s.seq}
	if d > 0 {
		n.until = s.clock.Now().Add(d)
		seq := s.seq
		n.timer = s.clock.AfterFunc(d, func() {
			s.expire(cat, seq)
		})
	}
	s.active[cat] = n
	s.log.Debug("notification shown", "category", cat)
}

func (s *Scheduler) hideLocked(cat Category) {
	if n, ok := s.active[cat]; ok {
		if n.timer != nil {
			n.timer.Stop()
		}
		delete(s.active, cat)
		s.log.Debug("notification hidden", "category", cat)
	}
}

func (s *Scheduler) expire(cat Category, seq uint64) {
	s.mu.Lock()
	if n, ok := s.active[cat]; ok && n.seq == seq {
		delete(s.active, cat)
	} else {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()
	s.changed()
}

func (s *Scheduler) duration(cat Category) time.Duration {
	switch cat {
	case CategoryRequestReceived:
		return s.cfg.RequestReceived
	case CategoryOfferSent:
		return s.cfg.OfferSent
	case CategoryOfferAccepted:
		return s.cfg.OfferAccepted
	case CategoryOfferDeclined:
		return s.cfg.OfferDeclined
	case CategoryOfferReceived:
		return s.cfg.OfferReceived
	}
	return 0
}

func (s *Scheduler) changed() {
	if s.OnChange != nil {
		s.OnChange()
	}
}
