package order

import (
	"bytes"
	"fmt"
	"sync"
	"text/template"
)

// Script holds the user-facing text and keywords for one order flow. The
// state set and validation rules are fixed in code; only the wording is data.
type Script struct {
	Name           string   `yaml:"name"            json:"name"`
	Version        string   `yaml:"version"         json:"version"`
	Description    string   `yaml:"description"     json:"description"`
	CancelKeyword  string   `yaml:"cancel_keyword"  json:"cancel_keyword"`
	RestartKeyword string   `yaml:"restart_keyword" json:"restart_keyword"`
	Prompts        Prompts  `yaml:"prompts"         json:"prompts"`
	Messages       Messages `yaml:"messages"        json:"messages"`
}

// Prompts are the questions asked on entering each collection state.
type Prompts struct {
	CustomerName string `yaml:"customer_name" json:"customer_name"`
	OrderItem    string `yaml:"order_item"    json:"order_item"`
	Price        string `yaml:"price"         json:"price"`
	Quantity     string `yaml:"quantity"      json:"quantity"`
}

// Messages are acknowledgements and re-entry requests. Summary is a Go
// template rendered over the finished OrderRecord.
type Messages struct {
	Cancelled            string `yaml:"cancelled"               json:"cancelled"`
	EmptyInput           string `yaml:"empty_input"             json:"empty_input"`
	PriceNotANumber      string `yaml:"price_not_a_number"      json:"price_not_a_number"`
	PriceNotPositive     string `yaml:"price_not_positive"      json:"price_not_positive"`
	QuantityNotAnInteger string `yaml:"quantity_not_an_integer" json:"quantity_not_an_integer"`
	QuantityNotPositive  string `yaml:"quantity_not_positive"   json:"quantity_not_positive"`
	Summary              string `yaml:"summary"                 json:"summary"`
}

// DefaultScript returns the built-in flow wording.
func DefaultScript() *Script {
	return &Script{
		Name:           "order",
		Version:        "1.0",
		Description:    "Order-taking flow",
		CancelKeyword:  "cancel",
		RestartKeyword: "restart",
		Prompts: Prompts{
			CustomerName: "Welcome! Please enter the Customer Name:",
			OrderItem:    "Enter the Order Item:",
			Price:        "Enter the Price:",
			Quantity:     "Enter the Quantity:",
		},
		Messages: Messages{
			Cancelled:            "Order creation cancelled.",
			EmptyInput:           "This field cannot be empty. Please try again:",
			PriceNotANumber:      "That is not a number. Enter the Price:",
			PriceNotPositive:     "The price must be greater than zero. Enter the Price:",
			QuantityNotAnInteger: "The quantity must be a whole number. Enter the Quantity:",
			QuantityNotPositive:  "The quantity must be greater than zero. Enter the Quantity:",
			Summary: "Order Summary:\n" +
				"- Customer Name: {{.CustomerName}}\n" +
				"- Order Item: {{.OrderItem}}\n" +
				"- Price: {{.Price}}\n" +
				"- Quantity: {{.Quantity}}\n" +
				"- Total Price: {{.TotalPrice}}",
		},
	}
}

// Validate checks the script for consistency.
func (s *Script) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("script: name is required")
	}
	if s.CancelKeyword == "" || s.RestartKeyword == "" {
		return fmt.Errorf("script %q: cancel_keyword and restart_keyword are required", s.Name)
	}
	if s.CancelKeyword == s.RestartKeyword {
		return fmt.Errorf("script %q: cancel_keyword and restart_keyword must differ", s.Name)
	}
	prompts := map[string]string{
		"prompts.customer_name": s.Prompts.CustomerName,
		"prompts.order_item":    s.Prompts.OrderItem,
		"prompts.price":         s.Prompts.Price,
		"prompts.quantity":      s.Prompts.Quantity,
	}
	for key, text := range prompts {
		if text == "" {
			return fmt.Errorf("script %q: %s is required", s.Name, key)
		}
	}
	if s.Messages.Summary == "" {
		return fmt.Errorf("script %q: messages.summary is required", s.Name)
	}
	if _, err := template.New("").Parse(s.Messages.Summary); err != nil {
		return fmt.Errorf("script %q: parse summary template: %w", s.Name, err)
	}
	return nil
}

// Prompt returns the question for a collection state, or "" for terminal
// states.
func (s *Script) Prompt(st State) string {
	switch st {
	case StateAwaitingCustomerName:
		return s.Prompts.CustomerName
	case StateAwaitingOrderItem:
		return s.Prompts.OrderItem
	case StateAwaitingPrice:
		return s.Prompts.Price
	case StateAwaitingQuantity:
		return s.Prompts.Quantity
	}
	return ""
}

// RejectionMessage returns the re-entry request matching a validation error.
// The wording always identifies which constraint failed.
func (s *Script) RejectionMessage(ve *ValidationError) string {
	switch ve.Field {
	case FieldPrice:
		if ve.Reason == ReasonNotPositive {
			return s.Messages.PriceNotPositive
		}
		return s.Messages.PriceNotANumber
	case FieldQuantity:
		if ve.Reason == ReasonNotPositive {
			return s.Messages.QuantityNotPositive
		}
		return s.Messages.QuantityNotAnInteger
	}
	return s.Messages.EmptyInput
}

// summaryCache caches parsed summary templates keyed by template text.
var summaryCache sync.Map

// summaryView is what the summary template executes over. The monetary
// fields are pre-rendered so the template sees "3.50", not the trimmed
// form Decimal.String would give.
type summaryView struct {
	CustomerName string
	OrderItem    string
	Price        string
	Quantity     int64
	TotalPrice   string
}

// RenderSummary renders the order summary for a finished record.
func (s *Script) RenderSummary(rec *OrderRecord) (string, error) {
	var tmpl *template.Template
	if cached, ok := summaryCache.Load(s.Messages.Summary); ok {
		tmpl = cached.(*template.Template)
	} else {
		var err error
		tmpl, err = template.New("summary").Parse(s.Messages.Summary)
		if err != nil {
			return "", fmt.Errorf("parse summary template: %w", err)
		}
		summaryCache.Store(s.Messages.Summary, tmpl)
	}

	view := summaryView{
		CustomerName: rec.CustomerName,
		OrderItem:    rec.OrderItem,
		Price:        rec.PriceText(),
		Quantity:     rec.Quantity,
		TotalPrice:   rec.TotalPriceText(),
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, view); err != nil {
		return "", fmt.Errorf("render summary: %w", err)
	}
	return buf.String(), nil
}
