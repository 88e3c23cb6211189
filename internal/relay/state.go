package relay

import "time"

// State is the relay lifecycle: Idle → Subscribing → Streaming → Closed.
// A reconnect moves Streaming back to Subscribing.
type State int32

const (
	StateIdle State = iota
	StateSubscribing
	StateStreaming
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSubscribing:
		return "subscribing"
	case StateStreaming:
		return "streaming"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Session statuses
const (
	StatusSuccess   = "success"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

// Result summarises one session
type Result struct {
	SessionID     string         `json:"session_id"`
	Status        string         `json:"status"`
	Error         string         `json:"error,omitempty"`
	ErrorKind     string         `json:"error_kind,omitempty"`
	Stream        string         `json:"stream"`
	ProductIDs    []string       `json:"product_ids"`
	StartedAt     time.Time      `json:"started_at"`
	EndedAt       time.Time      `json:"ended_at"`
	Received      int            `json:"received"`
	Forwarded     int            `json:"forwarded"`
	Housekeeping  int            `json:"housekeeping"`
	Malformed     int            `json:"malformed"`
	WriteFailures int            `json:"write_failures"`
	Dropped       int            `json:"dropped"`
	Reconnects    int            `json:"reconnects"`
	PerProduct    map[string]int `json:"per_product"`
}
