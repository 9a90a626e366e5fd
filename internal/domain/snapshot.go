package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Snapshot is the analytics record of a session outcome, written at
// finalization or when the session is abandoned.
type Snapshot struct {
	SessionID     string
	FinalState    State
	ModelUsed     string
	Timestamp     time.Time
	CartItemCount int
	TotalValue    decimal.Decimal
}

// NewSnapshot projects s into a Snapshot taken at ts.
func NewSnapshot(s *Session, modelUsed string, ts time.Time) Snapshot {
	return Snapshot{
		SessionID:     s.ID,
		FinalState:    s.State,
		ModelUsed:     modelUsed,
		Timestamp:     ts.UTC(),
		CartItemCount: len(s.Cart),
		TotalValue:    s.TotalValue,
	}
}
