package domain

// State is the conversation stage a Session is in.
type State string

const (
	StateGreeting              State = "GREETING"
	StateBrowsing              State = "BROWSING"
	StateProductPendingConfirm State = "PRODUCT_CHOSEN_PENDING_CONFIRM"
	StateItemAddedAskMore      State = "ITEM_ADDED_ASK_MORE"
	StateAwaitingName          State = "AWAITING_NAME"
	StateAwaitingEmail         State = "AWAITING_EMAIL"
	StateAwaitingPhone         State = "AWAITING_PHONE"
	StateProposalReady         State = "PROPOSAL_READY"
	StateFinalized             State = "FINALIZED"
	StateError                 State = "ERROR"
)

var knownStates = map[State]bool{
	StateGreeting:              true,
	StateBrowsing:              true,
	StateProductPendingConfirm: true,
	StateItemAddedAskMore:      true,
	StateAwaitingName:          true,
	StateAwaitingEmail:         true,
	StateAwaitingPhone:         true,
	StateProposalReady:         true,
	StateFinalized:             true,
	StateError:                 true,
}

// Valid reports whether s is one of the declared states.
func (s State) Valid() bool {
	return knownStates[s]
}

// Terminal reports whether the conversation accepts no further turns.
func (s State) Terminal() bool {
	return s == StateFinalized || s == StateError
}

// CollectingContact reports whether s is one of the PII collection stages.
func (s State) CollectingContact() bool {
	return s == StateAwaitingName || s == StateAwaitingEmail || s == StateAwaitingPhone
}
