package wire

import (
	"encoding/json"
	"strings"
)

// Message type tags exchanged with browser agents. Commands travel broker to
// agent; replies come back as "<tag>-response" or "<tag>-error" carrying the
// same correlationId. Everything else is unsolicited.
const (
	TagHandshake         = "handshake"
	TagHandshakeResponse = "handshake-response"
	TagHeartbeat         = "heartbeat"
	TagHeartbeatResponse = "heartbeat-response"
	TagServerShutdown    = "server-shutdown"

	TagTakeScreenshot = "take-screenshot"
	TagClickElement   = "click-element"
	TagReadStorage    = "read-storage"
	TagNavigate       = "navigate"

	TagConsoleLog      = "console-log"
	TagConsoleError    = "console-error"
	TagNetworkRequest  = "network-request"
	TagSelectedElement = "selected-element"
	TagPageNavigated   = "page-navigated"
	TagTelemetryBatch  = "telemetry-batch"
)

const (
	responseSuffix = "-response"
	errorSuffix    = "-error"
)

// Kind classifies an inbound frame for routing.
type Kind int

const (
	KindUnknown Kind = iota
	KindHeartbeatAck
	KindReply
	KindTelemetry
	KindControl
)

func (k Kind) String() string {
	switch k {
	case KindHeartbeatAck:
		return "heartbeat-ack"
	case KindReply:
		return "reply"
	case KindTelemetry:
		return "telemetry"
	case KindControl:
		return "control"
	default:
		return "unknown"
	}
}

// fixedKinds routes exact tags; reply classification falls through to the
// suffix rules so new command tags need no table entry.
var fixedKinds = map[string]Kind{
	TagHeartbeatResponse: KindHeartbeatAck,
	TagHandshake:         KindControl,
	TagServerShutdown:    KindControl,
	TagConsoleLog:        KindTelemetry,
	TagConsoleError:      KindTelemetry,
	TagNetworkRequest:    KindTelemetry,
	TagSelectedElement:   KindTelemetry,
	TagPageNavigated:     KindTelemetry,
	TagTelemetryBatch:    KindTelemetry,
}

// Classify maps a frame's type tag onto its routing kind.
func Classify(tag string) Kind {
	if k, ok := fixedKinds[tag]; ok {
		return k
	}
	if strings.HasSuffix(tag, responseSuffix) || strings.HasSuffix(tag, errorSuffix) {
		return KindReply
	}
	return KindUnknown
}

// ResponseTag returns the reply tag an agent uses for a successful command.
func ResponseTag(tag string) string { return tag + responseSuffix }

// ErrorTag returns the reply tag an agent uses for a failed command.
func ErrorTag(tag string) string { return tag + errorSuffix }

// IsErrorReply reports whether a reply tag carries a failure.
func IsErrorReply(tag string) bool { return strings.HasSuffix(tag, errorSuffix) }

// Message is a decoded inbound frame. Only the fields relevant to the frame's
// kind are populated; Data stays raw until the payload pipeline has bounded it.
type Message struct {
	Type          string          `json:"type"`
	CorrelationID string          `json:"correlationId,omitempty"`
	Signature     string          `json:"signature,omitempty"`
	Version       string          `json:"version,omitempty"`
	Data          json.RawMessage `json:"data,omitempty"`
	Error         string          `json:"error,omitempty"`
}

// Command is an outbound command envelope. Operation fields sit at the top
// level of the encoded frame next to type and correlationId, so Fields is
// flattened during marshalling rather than nested under a key.
type Command struct {
	Type          string
	CorrelationID string
	Fields        map[string]any
}

func (c Command) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, len(c.Fields)+2)
	for k, v := range c.Fields {
		m[k] = v
	}
	m["type"] = c.Type
	if c.CorrelationID != "" {
		m["correlationId"] = c.CorrelationID
	}
	return json.Marshal(m)
}

// Control builds a bare control frame such as heartbeat or server-shutdown.
func Control(tag string) Command {
	return Command{Type: tag}
}
