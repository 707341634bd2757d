package arbitration

import (
	"log/slog"
	"sync"
	"time"

	"github.com/Anurag-amrev-7557/FxSync-sub003/internal/shared"
	"github.com/benbjohnson/clock"
)

type Phase string

const (
	PhaseIdle      Phase = "idle"
	PhasePending   Phase = "pending"
	PhaseSent      Phase = "sent"
	PhaseResult    Phase = "result"
	PhaseError     Phase = "error"
	PhaseCancelled Phase = "cancelled"
)

type ResultKind string

const (
	ResultApproved ResultKind = "approved"
	ResultDenied   ResultKind = "denied"
)

// LocalRequestState is the tagged variant tracking this peer's own
// controller request. Exactly one phase is active at a time; there are no
// independent boolean flags to drift apart.
type LocalRequestState struct {
	Phase  Phase
	Since  time.Time
	Until  time.Time
	Result ResultKind
}

// Durations for the transient phases. Zero values fall back to defaults.
type Durations struct {
	Result    time.Duration
	Error     time.Duration
	Cancelled time.Duration
}

const (
	defaultResultDuration    = 4 * time.Second
	defaultErrorDuration     = 3 * time.Second
	defaultCancelledDuration = 2 * time.Second
)

func (d Durations) withDefaults() Durations {
	if d.Result <= 0 {
		d.Result = defaultResultDuration
	}
	if d.Error <= 0 {
		d.Error = defaultErrorDuration
	}
	if d.Cancelled <= 0 {
		d.Cancelled = defaultCancelledDuration
	}
	return d
}

// MachineHooks receive machine output. All hooks fire outside the machine
// lock and may be nil.
type MachineHooks struct {
	// OnState fires on every LocalRequestState change.
	OnState func(LocalRequestState)
	// OnRoleChange fires when IsController flips, after the machine reset.
	OnRoleChange func(isController bool)
	// OnStale fires when a broadcast is dropped for epoch regression.
	OnStale func(gotEpoch, lastEpoch uint64)
}

// Machine is the per-peer arbitration state machine. It mirrors the
// coordinator's broadcast state read-only and owns this peer's
// LocalRequestState exclusively.
type Machine struct {
	mu    sync.Mutex
	self  shared.ClientID
	clock clock.Clock
	durs  Durations
	hooks MachineHooks
	log   *slog.Logger

	mirror State
	state  LocalRequestState

	// seq invalidates expiry timers preempted by a later transition.
	seq   uint64
	timer *clock.Timer
}

func NewMachine(self shared.ClientID, clk clock.Clock, durs Durations, hooks MachineHooks, log *slog.Logger) *Machine {
	if clk == nil {
		clk = clock.New()
	}
	if log == nil {
		log = slog.Default()
	}
	return &Machine{
		self:  self,
		clock: clk,
		durs:  durs.withDefaults(),
		hooks: hooks,
		log:   log.With("component", "arbitration_machine", "client_id", self),
		state: LocalRequestState{Phase: PhaseIdle},
	}
}

// IsController is a pure function of the mirrored controller id. It is
// recomputed on every read, never cached across a controller change.
func (m *Machine) IsController() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mirror.ControllerClientID == m.self
}

func (m *Machine) Current() LocalRequestState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Mirror returns a copy of the peer's view of session arbitration state.
func (m *Machine) Mirror() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mirror.clone()
}

// BeginRequest moves Idle to Pending and reports whether a dispatch should
// follow. A request while an entry for self already exists in the mirrored
// queue, or while one is already in flight, is a no-op.
func (m *Machine) BeginRequest() bool {
	m.mu.Lock()
	if m.state.Phase != PhaseIdle || m.mirror.HasRequest(m.self) {
		m.mu.Unlock()
		return false
	}
	st := m.transitionLocked(LocalRequestState{Phase: PhasePending, Since: m.clock.Now()})
	m.mu.Unlock()
	m.notifyState(st)
	return true
}

// OnRequestAck resolves the Pending phase: Sent on success, Error on
// failure. The Sent phase keeps the Pending start time for derived denial.
func (m *Machine) OnRequestAck(success bool) {
	m.mu.Lock()
	if m.state.Phase != PhasePending {
		m.mu.Unlock()
		return
	}
	var st LocalRequestState
	if success {
		st = m.transitionLocked(LocalRequestState{Phase: PhaseSent, Since: m.state.Since})
	} else {
		st = m.expireAfterLocked(LocalRequestState{Phase: PhaseError}, m.durs.Error)
	}
	m.mu.Unlock()
	m.notifyState(st)
}

// OnCancelAck resolves an acknowledged cancellation of a Sent request.
// There is no local-only cancellation: a failed ack leaves Sent untouched.
func (m *Machine) OnCancelAck(success bool) {
	m.mu.Lock()
	if !success || m.state.Phase != PhaseSent {
		m.mu.Unlock()
		return
	}
	st := m.expireAfterLocked(LocalRequestState{Phase: PhaseCancelled}, m.durs.Cancelled)
	m.mu.Unlock()
	m.notifyState(st)
}

// Apply consumes one broadcast. Broadcasts whose epoch regressed behind the
// last applied one are dropped and reported as stale.
func (m *Machine) Apply(ev Event) {
	m.mu.Lock()

	if ev.Epoch > 0 && ev.Epoch < m.mirror.Epoch {
		got, last := ev.Epoch, m.mirror.Epoch
		m.mu.Unlock()
		m.log.Warn("dropping stale broadcast",
			"error", shared.ErrStaleOrdering, "type", ev.Type, "epoch", got, "last_epoch", last)
		if m.hooks.OnStale != nil {
			m.hooks.OnStale(got, last)
		}
		return
	}
	if ev.Epoch > 0 {
		m.mirror.Epoch = ev.Epoch
	}

	var (
		changed     *LocalRequestState
		roleFlipped bool
		nowCtrl     bool
	)

	switch ev.Type {
	case MessageTypeControllerChange:
		wasCtrl := m.mirror.ControllerClientID == m.self
		m.mirror.ControllerClientID = ev.ControllerClientID
		nowCtrl = m.mirror.ControllerClientID == m.self
		roleFlipped = wasCtrl != nowCtrl

		if roleFlipped {
			if nowCtrl && m.state.Phase == PhaseSent {
				st := m.expireAfterLocked(LocalRequestState{Phase: PhaseResult, Result: ResultApproved}, m.durs.Result)
				changed = &st
			} else {
				// Any other flip invalidates all in-flight bookkeeping,
				// pre-empting any running expiry timer.
				st := m.transitionLocked(LocalRequestState{Phase: PhaseIdle})
				changed = &st
			}
		}

	case MessageTypeRequestsUpdate:
		m.mirror.PendingRequests = ev.PendingRequests
		if st, ok := m.derivedDenialLocked(); ok {
			changed = &st
		}

	case MessageTypeRequestDenied:
		// Explicit denial from the coordinator. The derived rule below
		// remains as a fallback for coordinators that never send this.
		if ev.RequesterClientID == m.self && (m.state.Phase == PhaseSent || m.state.Phase == PhasePending) {
			st := m.expireAfterLocked(LocalRequestState{Phase: PhaseResult, Result: ResultDenied}, m.durs.Result)
			changed = &st
		}
	}

	m.mu.Unlock()

	if changed != nil {
		m.notifyState(*changed)
	}
	if roleFlipped && m.hooks.OnRoleChange != nil {
		m.hooks.OnRoleChange(nowCtrl)
	}
}

// derivedDenialLocked infers denial from evidence alone: the peer is not
// controller, its entry vanished from the mirrored queue, and it had a
// recorded start time. An ordering hazard by construction; the explicit
// denied broadcast is preferred and handled first.
func (m *Machine) derivedDenialLocked() (LocalRequestState, bool) {
	if m.state.Phase != PhaseSent || m.state.Since.IsZero() {
		return LocalRequestState{}, false
	}
	if m.mirror.ControllerClientID == m.self || m.mirror.HasRequest(m.self) {
		return LocalRequestState{}, false
	}
	return m.expireAfterLocked(LocalRequestState{Phase: PhaseResult, Result: ResultDenied}, m.durs.Result), true
}

func (m *Machine) transitionLocked(st LocalRequestState) LocalRequestState {
	m.seq++
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	m.state = st
	return st
}

func (m *Machine) expireAfterLocked(st LocalRequestState, d time.Duration) LocalRequestState {
	now := m.clock.Now()
	if st.Since.IsZero() {
		st.Since = now
	}
	st.Until = now.Add(d)
	st = m.transitionLocked(st)

	seq := m.seq
	m.timer = m.clock.AfterFunc(d, func() {
		m.expire(seq)
	})
	return st
}

func (m *Machine) expire(seq uint64) {
	m.mu.Lock()
	if m.seq != seq {
		m.mu.Unlock()
		return
	}
	st := m.transitionLocked(LocalRequestState{Phase: PhaseIdle})
	m.mu.Unlock()
	m.notifyState(st)
}

func (m *Machine) notifyState(st LocalRequestState) {
	m.log.Debug("local request state", "phase", st.Phase, "result", st.Result)
	if m.hooks.OnState != nil {
		m.hooks.OnState(st)
	}
}
