package model

// Client event names accepted over the websocket.
const (
	EventJoin     = "join"
	EventLeave    = "leave"
	EventMessage  = "message"
	EventSendFile = "send_file"
)

// Server event names delivered over the websocket.
const (
	EventReceiveFile = "receive_file"
	EventError       = "error"
)

// ClientEvent is an inbound websocket frame. Which fields are meaningful
// depends on Event; unknown fields are ignored.
type ClientEvent struct {
	Event    string `json:"event"`
	Room     string `json:"room,omitempty"`
	Username string `json:"username,omitempty"`
	Name     string `json:"name,omitempty"`
	Message  string `json:"message,omitempty"`
	FileURL  string `json:"file_url,omitempty"`
}

// ServerEvent is an outbound websocket frame. Presence notifications carry
// an empty Sender and IsSystem set, so Sender is serialized even when empty.
type ServerEvent struct {
	Event    string `json:"event"`
	Sender   string `json:"sender"`
	Message  string `json:"message,omitempty"`
	IsSystem bool   `json:"is_system,omitempty"`
	Username string `json:"username,omitempty"`
	FileURL  string `json:"file_url,omitempty"`
}

// Wire is the delivery channel of one connection. The broadcaster writes
// server events into TX; the connection's sender goroutine drains it.
type Wire struct {
	TX chan ServerEvent
}

func NewWire() Wire {
	return Wire{
		TX: make(chan ServerEvent),
	}
}
