package arbitration

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/Anurag-amrev-7557/FxSync-sub003/internal/shared"
	"github.com/benbjohnson/clock"
)

func newTestMachine(self shared.ClientID, hooks MachineHooks) (*Machine, *clock.Mock) {
	mock := clock.NewMock()
	m := NewMachine(self, mock, Durations{}, hooks, nil)
	return m, mock
}

func TestMachine_InitialState(t *testing.T) {
	m, _ := newTestMachine("a1", MachineHooks{})
	if got := m.Current().Phase; got != PhaseIdle {
		t.Errorf("initial phase should be idle, got %s", got)
	}
	if m.IsController() {
		t.Error("fresh machine should not be controller")
	}
}

func TestMachine_BeginRequest(t *testing.T) {
	m, _ := newTestMachine("a1", MachineHooks{})
	if !m.BeginRequest() {
		t.Fatal("first BeginRequest should proceed")
	}
	if got := m.Current().Phase; got != PhasePending {
		t.Errorf("expected pending, got %s", got)
	}
	if m.BeginRequest() {
		t.Error("BeginRequest while pending should be a no-op")
	}
}

func TestMachine_BeginRequest_NoOpWhenAlreadyQueued(t *testing.T) {
	m, _ := newTestMachine("a1", MachineHooks{})
	m.Apply(Event{
		Type:  MessageTypeRequestsUpdate,
		Epoch: 1,
		PendingRequests: []ControllerRequest{
			{ClientID: "a1", RequesterName: "a1"},
		},
	})
	if m.BeginRequest() {
		t.Error("BeginRequest should be a no-op while self is in the mirrored queue")
	}
	if got := m.Current().Phase; got != PhaseIdle {
		t.Errorf("phase should stay idle, got %s", got)
	}
}

func TestMachine_AckSuccessKeepsStartTime(t *testing.T) {
	m, mock := newTestMachine("a1", MachineHooks{})
	m.BeginRequest()
	started := m.Current().Since
	mock.Add(500 * time.Millisecond)
	m.OnRequestAck(true)
	st := m.Current()
	if st.Phase != PhaseSent {
		t.Fatalf("expected sent, got %s", st.Phase)
	}
	if !st.Since.Equal(started) {
		t.Error("sent phase should keep the pending start time")
	}
}

func TestMachine_AckFailure_ErrorThenIdle(t *testing.T) {
	m, mock := newTestMachine("a1", MachineHooks{})
	m.BeginRequest()
	m.OnRequestAck(false)
	if got := m.Current().Phase; got != PhaseError {
		t.Fatalf("expected error, got %s", got)
	}
	mock.Add(3 * time.Second)
	if got := m.Current().Phase; got != PhaseIdle {
		t.Errorf("expected idle after error expiry, got %s", got)
	}
}

func TestMachine_ScenarioA_ApprovedFlow(t *testing.T) {
	var phases []Phase
	m, mock := newTestMachine("a1", MachineHooks{
		OnState: func(st LocalRequestState) { phases = append(phases, st.Phase) },
	})
	m.BeginRequest()
	m.OnRequestAck(true)

	m.Apply(Event{Type: MessageTypeControllerChange, Epoch: 1, ControllerClientID: "a1"})
	st := m.Current()
	if st.Phase != PhaseResult || st.Result != ResultApproved {
		t.Fatalf("expected approved result, got %s/%s", st.Phase, st.Result)
	}
	if !m.IsController() {
		t.Error("a1 should be controller after the change broadcast")
	}

	mock.Add(4 * time.Second)
	if got := m.Current().Phase; got != PhaseIdle {
		t.Errorf("expected idle after result expiry, got %s", got)
	}
	if !m.IsController() {
		t.Error("controller role should survive the local expiry")
	}

	want := []Phase{PhasePending, PhaseSent, PhaseResult, PhaseIdle}
	if len(phases) != len(want) {
		t.Fatalf("expected %v, got %v", want, phases)
	}
	for i := range want {
		if phases[i] != want[i] {
			t.Errorf("transition %d: expected %s, got %s", i, want[i], phases[i])
		}
	}
}

func TestMachine_ScenarioB_DerivedDenial(t *testing.T) {
	m, mock := newTestMachine("b1", MachineHooks{})
	m.BeginRequest()
	m.OnRequestAck(true)

	m.Apply(Event{
		Type:  MessageTypeRequestsUpdate,
		Epoch: 1,
		PendingRequests: []ControllerRequest{
			{ClientID: "b1", RequesterName: "b1"},
		},
	})
	if got := m.Current().Phase; got != PhaseSent {
		t.Fatalf("expected sent while queued, got %s", got)
	}

	m.Apply(Event{Type: MessageTypeRequestsUpdate, Epoch: 2, PendingRequests: nil})
	st := m.Current()
	if st.Phase != PhaseResult || st.Result != ResultDenied {
		t.Fatalf("expected derived denial, got %s/%s", st.Phase, st.Result)
	}

	mock.Add(4 * time.Second)
	if got := m.Current().Phase; got != PhaseIdle {
		t.Errorf("expected idle after denial expiry, got %s", got)
	}
}

func TestMachine_ExplicitDenied(t *testing.T) {
	m, _ := newTestMachine("b1", MachineHooks{})
	m.BeginRequest()
	m.OnRequestAck(true)

	m.Apply(Event{Type: MessageTypeRequestDenied, Epoch: 1, RequesterClientID: "b1"})
	st := m.Current()
	if st.Phase != PhaseResult || st.Result != ResultDenied {
		t.Fatalf("expected explicit denial, got %s/%s", st.Phase, st.Result)
	}
}

func TestMachine_ExplicitDenied_OtherPeerIgnored(t *testing.T) {
	m, _ := newTestMachine("b1", MachineHooks{})
	m.BeginRequest()
	m.OnRequestAck(true)

	m.Apply(Event{Type: MessageTypeRequestDenied, Epoch: 1, RequesterClientID: "b2"})
	if got := m.Current().Phase; got != PhaseSent {
		t.Errorf("denial of another peer should not touch local state, got %s", got)
	}
}

func TestMachine_CancelAck(t *testing.T) {
	m, mock := newTestMachine("a1", MachineHooks{})
	m.BeginRequest()
	m.OnRequestAck(true)
	m.OnCancelAck(true)
	if got := m.Current().Phase; got != PhaseCancelled {
		t.Fatalf("expected cancelled, got %s", got)
	}
	mock.Add(2 * time.Second)
	if got := m.Current().Phase; got != PhaseIdle {
		t.Errorf("expected idle after cancel expiry, got %s", got)
	}
}

func TestMachine_CancelAckFailure_LeavesSent(t *testing.T) {
	m, _ := newTestMachine("a1", MachineHooks{})
	m.BeginRequest()
	m.OnRequestAck(true)
	m.OnCancelAck(false)
	if got := m.Current().Phase; got != PhaseSent {
		t.Errorf("failed cancel ack must not change state, got %s", got)
	}
}

func TestMachine_RoleFlipResetsAnyState(t *testing.T) {
	flips := 0
	m, mock := newTestMachine("a1", MachineHooks{
		OnRoleChange: func(bool) { flips++ },
	})
	m.BeginRequest()
	m.OnRequestAck(false) // error phase with a running timer

	m.Apply(Event{Type: MessageTypeControllerChange, Epoch: 1, ControllerClientID: "a1"})
	if got := m.Current().Phase; got != PhaseIdle {
		t.Fatalf("role flip must reset to idle, got %s", got)
	}
	if flips != 1 {
		t.Errorf("expected 1 role flip, got %d", flips)
	}

	// The preempted error timer must not fire into the new state.
	m.BeginRequest()
	mock.Add(3 * time.Second)
	if got := m.Current().Phase; got != PhasePending {
		t.Errorf("stale timer fired after preemption, got %s", got)
	}
}

func TestMachine_LosingRoleResets(t *testing.T) {
	m, _ := newTestMachine("a1", MachineHooks{})
	m.Apply(Event{Type: MessageTypeControllerChange, Epoch: 1, ControllerClientID: "a1"})
	if !m.IsController() {
		t.Fatal("a1 should be controller")
	}
	m.Apply(Event{Type: MessageTypeControllerChange, Epoch: 2, ControllerClientID: "a2"})
	if m.IsController() {
		t.Error("a1 should have lost the controller role")
	}
	if got := m.Current().Phase; got != PhaseIdle {
		t.Errorf("expected idle after losing role, got %s", got)
	}
}

func TestMachine_ControllerChangeToOther_WhileSent_NoFlip(t *testing.T) {
	m, _ := newTestMachine("b1", MachineHooks{})
	m.BeginRequest()
	m.OnRequestAck(true)
	m.Apply(Event{
		Type:  MessageTypeRequestsUpdate,
		Epoch: 1,
		PendingRequests: []ControllerRequest{
			{ClientID: "b1"}, {ClientID: "b2"},
		},
	})
	// Another peer won; b1 is still queued so no denial can be derived yet.
	m.Apply(Event{Type: MessageTypeControllerChange, Epoch: 2, ControllerClientID: "b2"})
	if got := m.Current().Phase; got != PhaseSent {
		t.Errorf("sent request should survive another peer's election, got %s", got)
	}
}

func TestMachine_StaleEpochDropped(t *testing.T) {
	var staleGot, staleLast uint64
	m, _ := newTestMachine("a1", MachineHooks{
		OnStale: func(got, last uint64) { staleGot, staleLast = got, last },
	})
	m.Apply(Event{Type: MessageTypeControllerChange, Epoch: 5, ControllerClientID: "a2"})
	m.Apply(Event{Type: MessageTypeControllerChange, Epoch: 3, ControllerClientID: "a1"})

	if m.IsController() {
		t.Error("stale broadcast must not be applied")
	}
	if staleGot != 3 || staleLast != 5 {
		t.Errorf("expected stale report 3/5, got %d/%d", staleGot, staleLast)
	}
	if got := m.Mirror().Epoch; got != 5 {
		t.Errorf("mirror epoch should stay 5, got %d", got)
	}
}

func TestMachine_StaleEpochLoggedAsOrderingError(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, nil))
	m := NewMachine("a1", clock.NewMock(), Durations{}, MachineHooks{}, log)

	m.Apply(Event{Type: MessageTypeControllerChange, Epoch: 5, ControllerClientID: "a2"})
	m.Apply(Event{Type: MessageTypeControllerChange, Epoch: 3, ControllerClientID: "a1"})

	if !strings.Contains(buf.String(), shared.ErrStaleOrdering.Error()) {
		t.Errorf("stale drop should report %q, log was: %s", shared.ErrStaleOrdering, buf.String())
	}
}

func TestMachine_DerivedDenial_NotWhileIdle(t *testing.T) {
	m, _ := newTestMachine("b1", MachineHooks{})
	m.Apply(Event{Type: MessageTypeRequestsUpdate, Epoch: 1, PendingRequests: nil})
	if got := m.Current().Phase; got != PhaseIdle {
		t.Errorf("queue update without an in-flight request must not derive denial, got %s", got)
	}
}
