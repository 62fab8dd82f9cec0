package models

// Event types pushed to a user's websocket subscribers.
const (
	EventSession   = "session"
	EventSignedOut = "signed_out"
	EventBalance   = "balance"
	EventReveal    = "reveal"
)

// Event is the JSON frame sent over /api/events.
type Event struct {
	Type    string  `json:"type"`
	User    *User   `json:"user,omitempty"`
	Balance *int    `json:"balance,omitempty"`
	Reveal  *Reveal `json:"reveal,omitempty"`
}

func BalanceEvent(balance int) Event {
	return Event{Type: EventBalance, Balance: &balance}
}
