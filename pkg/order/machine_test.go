package order

import (
	"strings"
	"testing"
)

// runFlow feeds inputs through a fresh machine starting at the entry state
// and returns the final fields, state, and last outcome.
func runFlow(t *testing.T, m *Machine, inputs []string) (Fields, State, Outcome) {
	t.Helper()

	st, _ := m.Begin()
	var fields Fields
	var out Outcome
	for _, in := range inputs {
		var err error
		fields, out, err = m.Apply(st, fields, in)
		if err != nil {
			t.Fatalf("Apply(%q, %q): %v", st, in, err)
		}
		st = out.Next
	}
	return fields, st, out
}

func TestHappyPath(t *testing.T) {
	m := NewMachine(nil)

	_, st, out := runFlow(t, m, []string{"Alice", "Coffee", "3.50", "4"})

	if st != StateCompleted {
		t.Fatalf("final state = %q, want %q", st, StateCompleted)
	}
	if out.Record == nil {
		t.Fatal("expected an order record on completion")
	}
	rec := out.Record
	if rec.CustomerName != "Alice" || rec.OrderItem != "Coffee" {
		t.Errorf("record = %+v, want Alice/Coffee", rec)
	}
	if got := rec.PriceText(); got != "3.50" {
		t.Errorf("price = %q, want 3.50", got)
	}
	if rec.Quantity != 4 {
		t.Errorf("quantity = %d, want 4", rec.Quantity)
	}
	if got := rec.TotalPriceText(); got != "14.00" {
		t.Errorf("total = %q, want 14.00", got)
	}

	for _, want := range []string{"Alice", "Coffee", "3.50", "4", "14.00"} {
		if !strings.Contains(out.Reply, want) {
			t.Errorf("summary %q missing %q", out.Reply, want)
		}
	}
}

func TestPromptSequence(t *testing.T) {
	m := NewMachine(nil)
	s := m.Script()

	st, prompt := m.Begin()
	if st != StateAwaitingCustomerName {
		t.Fatalf("entry state = %q", st)
	}
	if prompt != s.Prompts.CustomerName {
		t.Errorf("entry prompt = %q", prompt)
	}

	steps := []struct {
		input      string
		wantState  State
		wantPrompt string
	}{
		{"Alice", StateAwaitingOrderItem, s.Prompts.OrderItem},
		{"Coffee", StateAwaitingPrice, s.Prompts.Price},
		{"3.50", StateAwaitingQuantity, s.Prompts.Quantity},
	}

	var fields Fields
	for _, step := range steps {
		var out Outcome
		var err error
		fields, out, err = m.Apply(st, fields, step.input)
		if err != nil {
			t.Fatalf("Apply(%q): %v", step.input, err)
		}
		if out.Next != step.wantState {
			t.Errorf("after %q state = %q, want %q", step.input, out.Next, step.wantState)
		}
		if out.Reply != step.wantPrompt {
			t.Errorf("after %q reply = %q, want %q", step.input, out.Reply, step.wantPrompt)
		}
		st = out.Next
	}
}

func TestInvalidPriceKeepsStateAndFields(t *testing.T) {
	m := NewMachine(nil)

	inputs := []string{"abc", "12,30x", "zero", "", "   "}
	for _, in := range inputs {
		t.Run(in, func(t *testing.T) {
			fields := Fields{CustomerName: "Bob", OrderItem: "Tea"}
			got, out, err := m.Apply(StateAwaitingPrice, fields, in)
			if err != nil {
				t.Fatalf("Apply: %v", err)
			}
			if out.Next != StateAwaitingPrice {
				t.Errorf("state = %q, want %q", out.Next, StateAwaitingPrice)
			}
			if out.Rejection == nil || out.Rejection.Reason != ReasonNotANumber {
				t.Errorf("rejection = %+v, want not_a_number", out.Rejection)
			}
			if got != fields {
				t.Errorf("fields changed on rejected input: %+v", got)
			}
		})
	}
}

func TestNonPositivePriceRejected(t *testing.T) {
	m := NewMachine(nil)

	for _, in := range []string{"0", "-5", "0.00", "-0.01"} {
		t.Run(in, func(t *testing.T) {
			_, out, err := m.Apply(StateAwaitingPrice, Fields{CustomerName: "a", OrderItem: "b"}, in)
			if err != nil {
				t.Fatalf("Apply: %v", err)
			}
			if out.Next != StateAwaitingPrice {
				t.Errorf("state advanced on %q", in)
			}
			if out.Rejection == nil || out.Rejection.Reason != ReasonNotPositive {
				t.Errorf("rejection = %+v, want not_positive", out.Rejection)
			}
			if out.Reply != m.Script().Messages.PriceNotPositive {
				t.Errorf("reply = %q, want the positivity message", out.Reply)
			}
		})
	}
}

func TestFractionalQuantityRejectedNotTruncated(t *testing.T) {
	m := NewMachine(nil)
	fields, _, _ := runFlow(t, m, []string{"Alice", "Coffee", "3.50"})

	got, out, err := m.Apply(StateAwaitingQuantity, fields, "2.5")
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if out.Next != StateAwaitingQuantity {
		t.Errorf("state = %q, want %q", out.Next, StateAwaitingQuantity)
	}
	if out.Record != nil {
		t.Error("no record may be produced for a rejected quantity")
	}
	if out.Rejection == nil || out.Rejection.Reason != ReasonNotAnInteger {
		t.Errorf("rejection = %+v, want not_an_integer", out.Rejection)
	}
	if got.Quantity != nil {
		t.Error("quantity must not be stored on rejection")
	}
}

func TestQuantityValidationReasons(t *testing.T) {
	tests := []struct {
		input string
		want  Reason
	}{
		{"abc", ReasonNotAnInteger},
		{"2.5", ReasonNotAnInteger},
		{"+3", ReasonNotAnInteger},
		{"", ReasonNotAnInteger},
		{"0", ReasonNotPositive},
		{"-2", ReasonNotPositive},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			_, ve := parseQuantity(tt.input)
			if ve == nil {
				t.Fatalf("parseQuantity(%q) accepted", tt.input)
			}
			if ve.Reason != tt.want {
				t.Errorf("reason = %q, want %q", ve.Reason, tt.want)
			}
		})
	}
}

func TestCancelFromEveryState(t *testing.T) {
	m := NewMachine(nil)

	prefixes := [][]string{
		{},
		{"Alice"},
		{"Alice", "Coffee"},
		{"Alice", "Coffee", "3.50"},
	}
	for _, kw := range []string{"cancel", "CANCEL", "Cancel", "  cancel  "} {
		for _, prefix := range prefixes {
			fields, st, _ := runFlow(t, m, prefix)

			got, out, err := m.Apply(st, fields, kw)
			if err != nil {
				t.Fatalf("Apply(%q, %q): %v", st, kw, err)
			}
			if out.Next != StateCancelled {
				t.Errorf("cancel from %q with %q: state = %q", st, kw, out.Next)
			}
			if out.Record != nil {
				t.Error("cancel must not produce a record")
			}
			if (got != Fields{}) {
				t.Errorf("fields not cleared on cancel: %+v", got)
			}
			if out.Reply != m.Script().Messages.Cancelled {
				t.Errorf("reply = %q", out.Reply)
			}
		}
	}
}

func TestCancelWinsOverValidation(t *testing.T) {
	// "cancel" is perfectly valid text for a name, but the keyword check
	// takes precedence in every state.
	m := NewMachine(nil)
	_, out, err := m.Apply(StateAwaitingCustomerName, Fields{}, "cancel")
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if out.Next != StateCancelled {
		t.Errorf("state = %q, want %q", out.Next, StateCancelled)
	}
}

func TestRestartClearsFields(t *testing.T) {
	m := NewMachine(nil)
	fields, st, _ := runFlow(t, m, []string{"Alice", "Coffee", "3.50"})

	got, out, err := m.Apply(st, fields, "restart")
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if out.Next != StateAwaitingCustomerName {
		t.Errorf("state = %q, want entry state", out.Next)
	}
	if !out.Restarted {
		t.Error("expected Restarted to be set")
	}
	if (got != Fields{}) {
		t.Errorf("fields not cleared on restart: %+v", got)
	}
	if out.Reply != m.Script().Prompts.CustomerName {
		t.Errorf("reply = %q, want first prompt", out.Reply)
	}
}

func TestTerminalStateRejectsInput(t *testing.T) {
	m := NewMachine(nil)
	for _, st := range []State{StateCompleted, StateCancelled} {
		if _, _, err := m.Apply(st, Fields{}, "anything"); err != ErrTerminalState {
			t.Errorf("Apply in %q: err = %v, want ErrTerminalState", st, err)
		}
	}
}

func TestRecoveryAfterInvalidPrice(t *testing.T) {
	// "abc" bounces, then "2" is read as the price, not the quantity.
	m := NewMachine(nil)

	fields, st, out := runFlow(t, m, []string{"Bob", "Tea", "abc"})
	if st != StateAwaitingPrice {
		t.Fatalf("state after rejection = %q, want %q", st, StateAwaitingPrice)
	}
	if out.Reply != m.Script().Messages.PriceNotANumber {
		t.Errorf("reply = %q, want the price error message", out.Reply)
	}

	fields, out, err := m.Apply(st, fields, "2")
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if out.Next != StateAwaitingQuantity {
		t.Errorf("state = %q, want %q", out.Next, StateAwaitingQuantity)
	}
	if fields.Price == nil || fields.Price.String() != "2" {
		t.Errorf("price = %v, want 2", fields.Price)
	}
}

func TestCancelScenario(t *testing.T) {
	m := NewMachine(nil)
	_, st, out := runFlow(t, m, []string{"Carol", "Juice", "cancel"})
	if st != StateCancelled {
		t.Errorf("state = %q, want %q", st, StateCancelled)
	}
	if out.Record != nil {
		t.Error("no record may be produced on cancellation")
	}
}
