package domain

import (
	"slices"

	"github.com/shopspring/decimal"
)

// Customer holds the contact record collected during checkout. Empty strings
// mean "not collected yet".
type Customer struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

// Session is one visitor's conversation and the business data accumulated in it.
type Session struct {
	ID               string          `json:"session_id"`
	State            State           `json:"state"`
	Customer         Customer        `json:"customer"`
	PendingProduct   *Product        `json:"product_selected_for_cart,omitempty"`
	Cart             []LineItem      `json:"cart"`
	TotalValue       decimal.Decimal `json:"total_value"`
	History          []ChatMessage   `json:"turn_history"`
	LastInputInvalid bool            `json:"last_input_invalid"`
	ExperimentGroup  string          `json:"experiment_group"`
	Saved            bool            `json:"saved"`
}

// Clone returns a deep copy that shares no slices or pointers with s.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	out := *s
	if s.PendingProduct != nil {
		p := *s.PendingProduct
		out.PendingProduct = &p
	}
	out.Cart = slices.Clone(s.Cart)
	out.History = slices.Clone(s.History)
	return &out
}

// AppendTurn records one message in the turn history.
func (s *Session) AppendTurn(role, text string) {
	s.History = append(s.History, ChatMessage{Role: role, Content: text})
}

// RecomputeTotal sets TotalValue to the sum of the cart line amounts.
func (s *Session) RecomputeTotal() {
	total := decimal.Zero
	for _, item := range s.Cart {
		total = total.Add(item.Amount)
	}
	s.TotalValue = total
}
