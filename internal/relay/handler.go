package relay

import (
	"fmt"
	"net/http"
	"strings"
)

// SSEHandler returns an http.HandlerFunc that streams telemetry events as
// SSE. Clients may narrow the stream via ?channels=name1,name2; the filter
// is applied at subscription time so unwanted channels never occupy the
// subscriber buffer.
func SSEHandler(broker *Broker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "streaming not supported", http.StatusInternalServerError)
			return
		}

		var filter []string
		if q := r.URL.Query().Get("channels"); q != "" {
			for _, name := range strings.Split(q, ",") {
				if name = strings.TrimSpace(name); name != "" {
					filter = append(filter, name)
				}
			}
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no")
		flusher.Flush()

		id, ch := broker.Subscribe(filter...)
		defer broker.Unsubscribe(id)

		for {
			select {
			case <-r.Context().Done():
				return
			case evt, ok := <-ch:
				if !ok {
					return
				}
				fmt.Fprintf(w, "event: %s\ndata: %s\n\n", evt.Channel, evt.Payload)
				flusher.Flush()
			}
		}
	}
}
