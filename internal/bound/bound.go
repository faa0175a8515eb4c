// Package bound caps the size and depth of agent telemetry payloads before
// they are buffered. Telemetry shape and volume are controlled by whatever
// page the browser happens to be on, so every payload passes through here
// before any other part of the broker holds a reference to it.
package bound

import (
	"encoding/json"
	"fmt"
	"unicode/utf8"
)

// MaxDepth is the hard nesting ceiling. Subtrees below it are replaced with
// DepthSentinel instead of recursing, which also terminates walks over
// self-referential structures without cycle detection. Not configurable.
const MaxDepth = 100

// Marker is appended to any string cut short.
const Marker = "... (truncated)"

// DepthSentinel replaces subtrees nested beyond MaxDepth.
const DepthSentinel = "[max depth exceeded]"

// Limits holds the configurable caps. A cap of zero or less disables that
// bound; MaxDepth always applies.
type Limits struct {
	MaxStringLen  int // per-string byte cap
	MaxBatchBytes int // serialized byte budget per ingestion batch
}

// String caps s at maxLen bytes, appending Marker when it cuts. The cut backs
// off to a rune boundary so output stays valid UTF-8.
func String(s string, maxLen int) string {
	if maxLen <= 0 || len(s) <= maxLen {
		return s
	}
	cut := maxLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + Marker
}

// Value walks a decoded payload, bounding every string it contains and
// cutting the tree off at MaxDepth. Non-string scalars pass through.
func Value(v any, maxLen int) any {
	return boundValue(v, maxLen, 0)
}

func boundValue(v any, maxLen, depth int) any {
	if depth >= MaxDepth {
		return DepthSentinel
	}
	switch t := v.(type) {
	case string:
		return String(t, maxLen)
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = boundValue(e, maxLen, depth+1)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = boundValue(e, maxLen, depth+1)
		}
		return out
	default:
		return v
	}
}

// SequenceBySize applies transform to each item in order and keeps the
// longest prefix whose cumulative serialized size fits maxTotalBytes. The
// first item that would overflow the budget ends the sequence; nothing after
// it is kept, and no item is trimmed to squeeze it in. Earlier items are
// always preferred over later ones.
func SequenceBySize(items []any, maxTotalBytes int, transform func(any) any) []any {
	out := make([]any, 0, len(items))
	total := 0
	for _, item := range items {
		b := transform(item)
		n := serializedSize(b)
		if maxTotalBytes > 0 && total+n > maxTotalBytes {
			break
		}
		total += n
		out = append(out, b)
	}
	return out
}

func serializedSize(v any) int {
	data, err := json.Marshal(v)
	if err != nil {
		return len(fmt.Sprint(v))
	}
	return len(data)
}

// Process bounds one raw telemetry payload. Arrays get the prefix-keeping
// byte budget, everything else the recursive string/depth bounds; input that
// is not structured data at all is treated as one opaque string. Any failure
// mid-transform degrades to naive truncation of the raw input rather than
// surfacing an error.
func Process(raw []byte, lim Limits) (out any) {
	defer func() {
		if recover() != nil {
			out = String(string(raw), lim.MaxStringLen)
		}
	}()

	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return String(string(raw), lim.MaxStringLen)
	}

	if items, ok := v.([]any); ok {
		return SequenceBySize(items, lim.MaxBatchBytes, func(e any) any {
			return Value(e, lim.MaxStringLen)
		})
	}

	bounded := Value(v, lim.MaxStringLen)
	if lim.MaxBatchBytes > 0 {
		if data, err := json.Marshal(bounded); err == nil && len(data) > lim.MaxBatchBytes {
			// A single oversized object still has to respect the batch
			// budget; render it as a string and cap that instead.
			return hardCap(string(data), lim.MaxBatchBytes)
		}
	}
	return bounded
}

// hardCap truncates so the result including Marker fits maxBytes.
func hardCap(s string, maxBytes int) string {
	if maxBytes <= 0 || len(s) <= maxBytes {
		return s
	}
	keep := maxBytes - len(Marker)
	if keep < 0 {
		keep = 0
	}
	for keep > 0 && !utf8.RuneStart(s[keep]) {
		keep--
	}
	return s[:keep] + Marker
}
