package entities

import "time"

// TransportWebSocket is the only delivery transport currently wired.
const TransportWebSocket = "WebSocket"

// Listener maps a user to one live delivery channel. A user may hold any
// number of listeners at once, one per open connection.
type Listener struct {
	UserID      string    `json:"userId"`
	Transport   string    `json:"transport"`
	ListenerID  string    `json:"listenerId"`
	ConnectedAt time.Time `json:"connectedAt"`
}
