package workflow

import (
	"context"
	"errors"
	"testing"
)

func TestState_IsTerminal(t *testing.T) {
	tests := []struct {
		state    State
		expected bool
	}{
		{StatePending, false},
		{StateInApproval, false},
		{StateApproved, false},
		{StateInProgress, false},
		{StateRejected, true},
		{StateCompleted, true},
		{StateCancelled, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.state), func(t *testing.T) {
			if got := tt.state.IsTerminal(); got != tt.expected {
				t.Errorf("State.IsTerminal() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestState_IsValid(t *testing.T) {
	tests := []struct {
		name     string
		state    State
		expected bool
	}{
		{"pending", StatePending, true},
		{"cancelled", StateCancelled, true},
		{"unknown", State("AI_AUDITING"), false},
		{"empty", State(""), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.state.IsValid(); got != tt.expected {
				t.Errorf("State.IsValid() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func newTestMachine(t *testing.T, initial State) StateMachine {
	t.Helper()

	b := NewBuilder()
	b.Configure(StatePending).
		Permit(TriggerSubmit, StateInApproval).
		Permit(TriggerCancel, StateCancelled)
	b.Configure(StateInApproval).
		PermitIf(TriggerApprove, StateInApproval, HasRemainingSteps).
		PermitIf(TriggerApprove, StateApproved, ChainExhausted).
		Permit(TriggerReject, StateRejected)

	m, err := b.Build(initial)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	return m
}

func TestBuilder_BuildRejectsUnknownState(t *testing.T) {
	_, err := NewBuilder().Build(State("DRAFT"))
	if !errors.Is(err, ErrInvalidState) {
		t.Fatalf("Build() error = %v, want ErrInvalidState", err)
	}
}

func TestBuilder_ConfigurePanicsOnUnknownState(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("Configure() did not panic for unknown state")
		}
	}()
	NewBuilder().Configure(State("DRAFT"))
}

func TestBuilder_BuildIsolatesConfiguration(t *testing.T) {
	b := NewBuilder()
	b.Configure(StatePending).Permit(TriggerSubmit, StateInApproval)

	m, err := b.Build(StatePending)
	if err != nil {
		t.Fatal(err)
	}

	b.Configure(StatePending).Permit(TriggerCancel, StateCancelled)

	if m.CanFire(context.Background(), TriggerCancel) {
		t.Error("machine picked up a transition configured after Build")
	}
}

func TestStateMachine_Fire(t *testing.T) {
	ctx := context.Background()
	m := newTestMachine(t, StatePending)

	if err := m.Fire(ctx, TriggerSubmit); err != nil {
		t.Fatalf("Fire(SUBMIT) error = %v", err)
	}
	if m.State() != StateInApproval {
		t.Fatalf("State() = %s, want %s", m.State(), StateInApproval)
	}

	err := m.Fire(ctx, TriggerSubmit)
	if !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Fire(SUBMIT) from IN_APPROVAL error = %v, want ErrInvalidTransition", err)
	}
}

func TestStateMachine_GuardedApprove(t *testing.T) {
	tests := []struct {
		name      string
		remaining int
		want      State
	}{
		{"steps left stays in approval", 2, StateInApproval},
		{"last step approves request", 0, StateApproved},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newTestMachine(t, StateInApproval)
			ctx := WithRemainingSteps(context.Background(), tt.remaining)

			if err := m.Fire(ctx, TriggerApprove); err != nil {
				t.Fatalf("Fire(APPROVE) error = %v", err)
			}
			if m.State() != tt.want {
				t.Errorf("State() = %s, want %s", m.State(), tt.want)
			}
		})
	}
}

func TestStateMachine_GuardFailed(t *testing.T) {
	b := NewBuilder()
	b.Configure(StateApproved).PermitIf(TriggerStartPurchase, StateInProgress, func(context.Context) bool { return false })
	m, err := b.Build(StateApproved)
	if err != nil {
		t.Fatal(err)
	}

	err = m.Fire(context.Background(), TriggerStartPurchase)
	if !errors.Is(err, ErrGuardFailed) {
		t.Errorf("Fire() error = %v, want ErrGuardFailed", err)
	}
	if m.State() != StateApproved {
		t.Errorf("state changed after failed guard: %s", m.State())
	}
	if m.CanFire(context.Background(), TriggerStartPurchase) {
		t.Error("CanFire() = true for failing guard")
	}
}

func TestStateMachine_PermittedTriggersSorted(t *testing.T) {
	m := newTestMachine(t, StateInApproval)

	got := m.PermittedTriggers()
	want := []Trigger{TriggerApprove, TriggerReject}
	if len(got) != len(want) {
		t.Fatalf("PermittedTriggers() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("PermittedTriggers()[%d] = %s, want %s", i, got[i], want[i])
		}
	}

	terminal := newTestMachine(t, StateRejected)
	if len(terminal.PermittedTriggers()) != 0 {
		t.Error("terminal state should have no triggers")
	}
}
