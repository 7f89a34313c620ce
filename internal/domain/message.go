package domain

// Message is an immutable chat message. Timestamp is unix milliseconds, the
// wire format the clients already speak. Token is the author's bearer token;
// it is stored verbatim but redacted on read for everyone but the author.
type Message struct {
	ID        string `json:"id"`
	Sender    string `json:"sender"`
	Text      string `json:"text"`
	Timestamp int64  `json:"timestamp"`
	RoomID    string `json:"roomId"`
	Token     string `json:"token,omitempty"`
}

// Redacted returns a copy safe to show to viewer: the owner token survives
// only when viewer is the author.
func (m Message) Redacted(viewer string) Message {
	if m.Token != viewer {
		m.Token = ""
	}
	return m
}
