package picking

// EventType names a session state change.
type EventType string

const (
	EventLoaded    EventType = "loaded"
	EventScanned   EventType = "scanned"
	EventFinalized EventType = "finalized"
)

// Event describes one state change for live subscribers. Only the fields
// relevant to Type are set.
type Event struct {
	Type       EventType   `json:"type"`
	Number     string      `json:"number,omitempty"`
	Order      *Order      `json:"order,omitempty"`
	Product    *Product    `json:"product,omitempty"`
	Shortfalls []Shortfall `json:"shortfalls,omitempty"`
}
