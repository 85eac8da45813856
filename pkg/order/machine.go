package order

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrTerminalState is returned when input is applied to a completed or
// cancelled flow.
var ErrTerminalState = errors.New("order: no transitions from a terminal state")

// Machine applies the order-collection transition function. It carries no
// per-conversation state: every decision is a pure function of the current
// state, the accumulated fields, and the raw input.
type Machine struct {
	script *Script
}

// NewMachine creates a machine for the given script. A nil script selects
// the built-in default.
func NewMachine(script *Script) *Machine {
	if script == nil {
		script = DefaultScript()
	}
	return &Machine{script: script}
}

// Script returns the machine's flow script.
func (m *Machine) Script() *Script { return m.script }

// Begin returns the entry state and its prompt.
func (m *Machine) Begin() (State, string) {
	return StateAwaitingCustomerName, m.script.Prompts.CustomerName
}

// Outcome is the result of applying one input.
type Outcome struct {
	Next  State
	Reply string

	// Record is set only when Next is StateCompleted.
	Record *OrderRecord

	// Rejection is set when the input was refused; the state did not
	// advance and the fields are unchanged.
	Rejection *ValidationError

	// Restarted is set when the restart keyword reset the flow.
	Restarted bool
}

// Apply computes one transition. The cancel keyword wins over everything
// else in every state, then the restart keyword, then field validation.
// Fields are only ever written on successful validation, so a rejected
// input leaves them untouched.
func (m *Machine) Apply(st State, fields Fields, input string) (Fields, Outcome, error) {
	if st.Terminal() {
		return fields, Outcome{}, ErrTerminalState
	}

	keyword := strings.TrimSpace(input)
	if strings.EqualFold(keyword, m.script.CancelKeyword) {
		return Fields{}, Outcome{Next: StateCancelled, Reply: m.script.Messages.Cancelled}, nil
	}
	if strings.EqualFold(keyword, m.script.RestartKeyword) {
		next, prompt := m.Begin()
		return Fields{}, Outcome{Next: next, Reply: prompt, Restarted: true}, nil
	}

	switch st {
	case StateAwaitingCustomerName:
		name, ve := parseText(FieldCustomerName, input)
		if ve != nil {
			return fields, m.reject(st, ve), nil
		}
		fields.CustomerName = name
		return fields, Outcome{Next: StateAwaitingOrderItem, Reply: m.script.Prompts.OrderItem}, nil

	case StateAwaitingOrderItem:
		item, ve := parseText(FieldOrderItem, input)
		if ve != nil {
			return fields, m.reject(st, ve), nil
		}
		fields.OrderItem = item
		return fields, Outcome{Next: StateAwaitingPrice, Reply: m.script.Prompts.Price}, nil

	case StateAwaitingPrice:
		price, ve := parsePrice(input)
		if ve != nil {
			return fields, m.reject(st, ve), nil
		}
		fields.Price = &price
		return fields, Outcome{Next: StateAwaitingQuantity, Reply: m.script.Prompts.Quantity}, nil

	case StateAwaitingQuantity:
		qty, ve := parseQuantity(input)
		if ve != nil {
			return fields, m.reject(st, ve), nil
		}
		if fields.Price == nil {
			return fields, Outcome{}, fmt.Errorf("order: price not collected before state %q", st)
		}
		rec := &OrderRecord{
			CustomerName: fields.CustomerName,
			OrderItem:    fields.OrderItem,
			Price:        *fields.Price,
			Quantity:     qty,
			TotalPrice:   fields.Price.Mul(decimal.NewFromInt(qty)),
		}
		reply, err := m.script.RenderSummary(rec)
		if err != nil {
			return fields, Outcome{}, err
		}
		fields.Quantity = &qty
		return fields, Outcome{Next: StateCompleted, Reply: reply, Record: rec}, nil
	}

	return fields, Outcome{}, fmt.Errorf("order: unknown state %q", st)
}

func (m *Machine) reject(st State, ve *ValidationError) Outcome {
	return Outcome{Next: st, Reply: m.script.RejectionMessage(ve), Rejection: ve}
}
