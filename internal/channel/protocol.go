package channel

// The gateway speaks JSON frames over a single websocket. Client frames
// carry a correlation id when a reply is expected; server events echo it.

const (
	frameHello    = "hello"
	frameSend     = "send"
	frameExists   = "exists"
	framePresence = "presence"
	frameLogout   = "logout"
)

const (
	eventQR     = "qr"
	eventOpen   = "open"
	eventCreds  = "creds"
	eventAck    = "ack"
	eventExists = "exists"
	eventClose  = "close"
)

// Disconnect cause codes reported by the gateway.
const (
	// CloseLoggedOut means the credential material was invalidated
	// remotely. The session must be re-linked from scratch.
	CloseLoggedOut = 401
	// CloseRestartRequired asks for an immediate reconnect with the
	// same credentials, with no backoff delay.
	CloseRestartRequired = 515
)

const ackNotFound = "not_found"

type frame struct {
	Type        string `json:"type"`
	ID          string `json:"id,omitempty"`
	To          string `json:"to,omitempty"`
	Address     string `json:"address,omitempty"`
	Text        string `json:"text,omitempty"`
	Credentials string `json:"credentials,omitempty"`
	Presence    string `json:"presence,omitempty"`
}

type event struct {
	Type    string `json:"type"`
	ID      string `json:"id,omitempty"`
	Payload string `json:"payload,omitempty"`
	Code    int    `json:"code,omitempty"`
	Status  string `json:"status,omitempty"`
	Found   bool   `json:"found,omitempty"`
	Address string `json:"address,omitempty"`
}
