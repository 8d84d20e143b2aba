package status

import (
	"errors"
	"testing"
	"time"

	"github.com/sumithjoshi99/medconnect/internal/bus"
)

const (
	idle    State = "IDLE"
	running State = "RUNNING"
	failed  State = "FAILED"
)

var testTransitions = Transitions{
	idle:    {running},
	running: {idle, failed},
	failed:  {idle},
}

func TestInitialState(t *testing.T) {
	m := NewMachine("test.status", idle, testTransitions, nil)
	if m.Current() != idle {
		t.Errorf("initial state = %s, want IDLE", m.Current())
	}
	if m.Since().IsZero() {
		t.Error("Since() should be set on construction")
	}
}

func TestValidTransitions(t *testing.T) {
	tests := []struct {
		path []State
	}{
		{[]State{running}},
		{[]State{running, idle}},
		{[]State{running, failed, idle, running}},
	}
	for _, tt := range tests {
		m := NewMachine("test.status", idle, testTransitions, nil)
		for _, s := range tt.path {
			if !m.Can(s) {
				t.Errorf("Can(%s) = false from %s", s, m.Current())
			}
			if err := m.Transition(s); err != nil {
				t.Fatalf("Transition(%s) error = %v", s, err)
			}
		}
		if want := tt.path[len(tt.path)-1]; m.Current() != want {
			t.Errorf("state = %s, want %s", m.Current(), want)
		}
	}
}

func TestInvalidTransition(t *testing.T) {
	m := NewMachine("test.status", idle, testTransitions, nil)
	err := m.Transition(failed)
	var invalid *InvalidTransitionError
	if !errors.As(err, &invalid) {
		t.Fatalf("Transition(IDLE -> FAILED) error = %v, want InvalidTransitionError", err)
	}
	if invalid.From != idle || invalid.To != failed {
		t.Errorf("error = %+v", invalid)
	}
	if m.Current() != idle {
		t.Errorf("state changed on invalid transition: %s", m.Current())
	}
}

func TestTransitionEmitsEvent(t *testing.T) {
	b := bus.New()
	ch, unsub := b.Subscribe("test.", 10)
	defer unsub()

	m := NewMachine("test.status", idle, testTransitions, b)
	if err := m.TransitionWithReason(running, "started"); err != nil {
		t.Fatal(err)
	}

	select {
	case evt := <-ch:
		if evt.Kind != "test.status" {
			t.Errorf("kind = %q, want test.status", evt.Kind)
		}
		change, ok := evt.Payload.(Change)
		if !ok {
			t.Fatalf("payload type = %T, want Change", evt.Payload)
		}
		if change.From != idle || change.To != running || change.Reason != "started" {
			t.Errorf("change = %+v", change)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for status event")
	}
}
