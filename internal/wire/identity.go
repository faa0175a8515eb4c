package wire

// Signature is the fixed token both sides use to recognise a compatible peer.
// Agents verify it against GET /.identity before dialing the socket, and the
// broker requires it in the first frame of every new connection.
const Signature = "devtools-bridge-agent-24x7"

// Version is the protocol version advertised in the identity document and
// echoed in handshake responses.
const Version = "1.2.0"

// ServerName identifies the broker in the identity document.
const ServerName = "devtools_bridge"

// Identity is the discovery document served at /.identity.
type Identity struct {
	Signature string `json:"signature"`
	Version   string `json:"version"`
	Name      string `json:"name"`
}

// ServerIdentity returns the document this broker advertises.
func ServerIdentity() Identity {
	return Identity{Signature: Signature, Version: Version, Name: ServerName}
}
