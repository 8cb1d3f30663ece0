// Package hub fans websocket broadcasts out to connected dashboard
// clients: one Run loop owns the client set, each client drains its own
// buffered send channel.
package hub

// MessageType selects the websocket wire format of a Message.
type MessageType int

const (
	// JSONMessage carries a JSON-encoded event (reading updates).
	JSONMessage MessageType = iota
	// BinaryMessage carries raw bytes (JPEG frame previews).
	BinaryMessage
)

// Message is one payload broadcast to every connected client.
type Message struct {
	Type MessageType
	Data []byte
}

// NewJSONMessage wraps pre-encoded JSON bytes.
func NewJSONMessage(data []byte) Message {
	return Message{Type: JSONMessage, Data: data}
}

// NewBinaryMessage wraps raw bytes.
func NewBinaryMessage(data []byte) Message {
	return Message{Type: BinaryMessage, Data: data}
}
