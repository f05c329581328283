package picking

// State is the session lifecycle state.
type State int

const (
	StateEmpty State = iota
	StateLoading
	StateReady
	StateFinalizing
)

func (s State) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StateFinalizing:
		return "finalizing"
	default:
		return "unknown"
	}
}

// MarshalText renders the state by name in JSON.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
