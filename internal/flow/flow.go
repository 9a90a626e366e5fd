// Package flow owns the conversation transition table. The language model
// never moves a session directly: its proposals go through Propose and every
// resulting state through Repair.
package flow

import (
	"errors"
	"log/slog"
	"regexp"

	"sales-agent/internal/catalog"
	"sales-agent/internal/domain"
	"sales-agent/internal/intent"
	"sales-agent/internal/validate"
)

var checkoutLink = regexp.MustCompile(`https?://`)

// modelEdges are the transitions a model-declared chat state may trigger.
var modelEdges = map[domain.State][]domain.State{
	domain.StateBrowsing:              {domain.StateProductPendingConfirm},
	domain.StateProductPendingConfirm: {domain.StateItemAddedAskMore, domain.StateBrowsing},
	domain.StateItemAddedAskMore:      {domain.StateBrowsing, domain.StateAwaitingName},
}

// Step describes what the deterministic layer did with one user input.
type Step struct {
	From      domain.State
	To        domain.State
	Validated bool // a contact validator judged the input
	Invalid   bool // the validator rejected it
	Recovered bool // the input asked for something the session could not do yet
}

// Moved reports whether the deterministic layer changed the state.
func (s Step) Moved() bool {
	return s.From != s.To
}

// Decisive reports whether the deterministic layer settled this turn: it
// moved past the automatic greeting exit, or a validator judged the input.
// A model-declared state is only considered when the step is not decisive.
func (s Step) Decisive() bool {
	if s.Validated {
		return true
	}
	if s.From == domain.StateGreeting && s.To == domain.StateBrowsing {
		return false
	}
	return s.Moved()
}

// Machine applies the transition table. It holds no session state and is
// safe for concurrent use.
type Machine struct {
	classifier intent.Classifier
}

// New creates a Machine that reads user intent through classifier.
func New(classifier intent.Classifier) (*Machine, error) {
	if classifier == nil {
		return nil, errors.New("flow: classifier must not be nil")
	}
	return &Machine{classifier: classifier}, nil
}

// Advance applies the transition rules for one user input.
func (m *Machine) Advance(s *domain.Session, text string, products []domain.Product) Step {
	step := Step{From: s.State}
	if !s.State.Valid() {
		slog.Warn("flow: unknown state, moving session to ERROR", "session_id", s.ID, "state", s.State)
		s.State = domain.StateError
		step.To = s.State
		return step
	}

	if s.State == domain.StateGreeting {
		s.State = domain.StateBrowsing
	}

	switch s.State {
	case domain.StateBrowsing:
		if p, ok := catalog.Match(products, text); ok {
			s.PendingProduct = &p
			s.State = domain.StateProductPendingConfirm
		}

	case domain.StateProductPendingConfirm:
		switch m.classifier.Classify(text) {
		case intent.Affirm:
			if !addPending(s) {
				step.Recovered = true
			}
		case intent.Deny:
			s.PendingProduct = nil
			s.State = domain.StateBrowsing
		}

	case domain.StateItemAddedAskMore:
		switch m.classifier.Classify(text) {
		case intent.ContinueShopping:
			s.State = domain.StateBrowsing
		case intent.Finalize:
			if len(s.Cart) > 0 {
				s.State = domain.StateAwaitingName
			} else {
				s.State = domain.StateBrowsing
				step.Recovered = true
			}
		}

	case domain.StateAwaitingName:
		step.Validated = true
		if v, ok := validate.Name(text); ok {
			s.Customer.Name = v
			s.State = domain.StateAwaitingEmail
		} else {
			step.Invalid = true
		}

	case domain.StateAwaitingEmail:
		step.Validated = true
		if v, ok := validate.Email(text); ok {
			s.Customer.Email = v
			s.State = domain.StateAwaitingPhone
		} else {
			step.Invalid = true
		}

	case domain.StateAwaitingPhone:
		step.Validated = true
		if v, ok := validate.Phone(text); ok {
			s.Customer.Phone = v
			s.State = domain.StateProposalReady
		} else {
			step.Invalid = true
		}
	}

	if step.Invalid {
		s.LastInputInvalid = true
	}
	if step.Recovered {
		slog.Info("flow: recovered from out-of-order request", "session_id", s.ID, "from", step.From, "to", s.State)
	}
	step.To = s.State
	return step
}

// Propose applies a model-declared state when it is an allowed edge from the
// current state and its preconditions hold. pending is the product the model
// says it is offering, already resolved against the catalog.
func (m *Machine) Propose(s *domain.Session, to domain.State, pending *domain.Product) bool {
	if !allowed(s.State, to) {
		return false
	}
	switch to {
	case domain.StateProductPendingConfirm:
		if pending == nil {
			return false
		}
		p := *pending
		s.PendingProduct = &p
		s.State = to
	case domain.StateItemAddedAskMore:
		if s.PendingProduct == nil {
			return false
		}
		return addPending(s)
	case domain.StateBrowsing:
		s.PendingProduct = nil
		s.State = to
	case domain.StateAwaitingName:
		if len(s.Cart) == 0 {
			return false
		}
		s.State = to
	default:
		return false
	}
	return true
}

// Repair rolls the session back to the earliest state whose prerequisites
// are met and reports whether the state changed. Terminal states are left
// alone.
func (m *Machine) Repair(s *domain.Session) bool {
	if s.State.Terminal() {
		s.PendingProduct = nil
		return false
	}
	before := s.State
	needsContact := s.State.CollectingContact() || s.State == domain.StateProposalReady

	switch {
	case s.State == domain.StateProductPendingConfirm && s.PendingProduct == nil:
		s.State = domain.StateBrowsing
	case (s.State == domain.StateItemAddedAskMore || needsContact) && len(s.Cart) == 0:
		s.State = domain.StateBrowsing
	case needsContact && s.State != domain.StateAwaitingName && s.Customer.Name == "":
		s.State = domain.StateAwaitingName
	case (s.State == domain.StateAwaitingPhone || s.State == domain.StateProposalReady) && s.Customer.Email == "":
		s.State = domain.StateAwaitingEmail
	case s.State == domain.StateProposalReady && s.Customer.Phone == "":
		s.State = domain.StateAwaitingPhone
	}
	if s.State != domain.StateProductPendingConfirm {
		s.PendingProduct = nil
	}
	if s.State != before {
		slog.Warn("flow: inconsistent session rolled back", "session_id", s.ID, "from", before, "to", s.State)
		return true
	}
	return false
}

// Finalize forces FINALIZED when reply carries a checkout link, whatever
// state the session or the model claimed.
func (m *Machine) Finalize(s *domain.Session, reply string) bool {
	if !ContainsCheckoutLink(reply) {
		return false
	}
	s.State = domain.StateFinalized
	s.PendingProduct = nil
	return true
}

// ContainsCheckoutLink reports whether text holds an http(s) URL literal.
func ContainsCheckoutLink(text string) bool {
	return checkoutLink.MatchString(text)
}

func allowed(from, to domain.State) bool {
	for _, s := range modelEdges[from] {
		if s == to {
			return true
		}
	}
	return false
}

func addPending(s *domain.Session) bool {
	if s.PendingProduct == nil {
		s.State = domain.StateBrowsing
		return false
	}
	item, err := catalog.LineItem(*s.PendingProduct)
	if err != nil {
		slog.Warn("flow: pending product has an unreadable price, discarding", "session_id", s.ID, "product_id", s.PendingProduct.ID, "err", err)
		s.PendingProduct = nil
		s.State = domain.StateBrowsing
		return false
	}
	s.Cart = append(s.Cart, item)
	s.RecomputeTotal()
	s.PendingProduct = nil
	s.State = domain.StateItemAddedAskMore
	return true
}
