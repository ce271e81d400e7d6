package dto

// Realtime event names. Client-to-server and server-to-client frames share
// one envelope; anything outside this closed set is rejected with an error
// frame.
const (
	EventSetup           = "setup"
	EventJoinChat        = "join chat"
	EventTyping          = "typing"
	EventStopTyping      = "stop typing"
	EventNewMessage      = "new message"
	EventConnected       = "connected"
	EventMessageReceived = "message received"
	EventError           = "error"
)

// ClientEvent is a frame received from a websocket client.
type ClientEvent struct {
	Event   string       `json:"event"`
	UserID  uint         `json:"userId,omitempty"`
	ChatID  uint         `json:"chatId,omitempty"`
	Message *MessageView `json:"message,omitempty"`
}

// ServerEvent is a frame pushed to a websocket client.
type ServerEvent struct {
	Event   string       `json:"event"`
	ChatID  uint         `json:"chatId,omitempty"`
	Message *MessageView `json:"message,omitempty"`
	Error   string       `json:"error,omitempty"`
}
