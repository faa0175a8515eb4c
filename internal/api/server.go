// Package api exposes the bridge over HTTP: the huma-described tool and
// telemetry surface for stateless clients, the /ws upgrade endpoint browser
// agents dial, the SSE relay and the /.identity discovery document.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dgnsrekt/devtools_bridge/internal/bridge"
	"github.com/dgnsrekt/devtools_bridge/internal/gateway"
	"github.com/dgnsrekt/devtools_bridge/internal/relay"
	"github.com/dgnsrekt/devtools_bridge/internal/snapshot"
	"github.com/dgnsrekt/devtools_bridge/internal/telemetry"
	"github.com/dgnsrekt/devtools_bridge/internal/wire"
)

// Service is the tool surface the HTTP layer fronts. *gateway.Service
// implements it.
type Service interface {
	CaptureScreenshot(ctx context.Context, format string, quality int, fullPage bool, notes string, timeout time.Duration) (snapshot.Meta, error)
	ClickElement(ctx context.Context, selector string, x, y *int, timeout time.Duration) (map[string]any, error)
	ReadStorage(ctx context.Context, kind string, timeout time.Duration) (map[string]any, error)
	Navigate(ctx context.Context, rawURL string, timeout time.Duration) (map[string]any, error)
	SelectedElement() (telemetry.Entry, bool)
	ConsoleLogs(level string, limit int) ([]telemetry.Entry, error)
	NetworkEvents(status string, limit int) ([]telemetry.Entry, error)
	WipeTelemetry()
	TelemetryCounts() map[string]int
	ListSnapshots() ([]snapshot.Meta, error)
	GetSnapshot(id string) (snapshot.Meta, error)
	ReadSnapshotImage(id string) ([]byte, string, error)
	DeleteSnapshot(id string) error
	Agents() []bridge.AgentInfo
	Health() gateway.HealthReport
	DeepHealth(ctx context.Context) gateway.DeepHealthReport
}

// AgentSocket wires the /ws endpoint into the broker core. Relay may be nil;
// the SSE surface is then not mounted.
type AgentSocket struct {
	Registry          *bridge.Registry
	Correlator        *bridge.Correlator
	Telemetry         *telemetry.Store
	Relay             *relay.Publisher
	HeartbeatInterval time.Duration
}

func NewServer(svc Service, sock AgentSocket) http.Handler {
	router := chi.NewMux()
	router.Use(middleware.RequestID)
	router.Use(requestLogger)
	router.Use(middleware.Recoverer)

	cfg := huma.DefaultConfig("DevTools Bridge API", wire.Version)
	cfg.DocsPath = ""
	api := humachi.New(router, cfg)

	router.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		if _, err := w.Write([]byte(docsHTML)); err != nil {
			slog.Debug("docs response write failed", "error", err)
		}
	})
	router.Get("/docs/protocol", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		if _, err := w.Write([]byte(protocolDocsHTML)); err != nil {
			slog.Debug("docs response write failed", "error", err)
		}
	})

	router.Get("/.identity", identityHandler)
	router.Get("/ws", agentSocketHandler(sock))
	router.Get("/api/v1/snapshots/{snapshot_id}/image", snapshotImageHandler(svc))
	if sock.Relay != nil {
		router.Get("/api/v1/relay/events", relay.SSEHandler(sock.Relay.Broker()))
	}

	registerToolHandlers(api, svc)
	registerTelemetryHandlers(api, svc)
	registerSnapshotHandlers(api, svc)
	registerMiscHandlers(api, svc)
	if sock.Relay != nil {
		registerRelayHandlers(api, sock.Relay)
	}

	return router
}

// identityHandler serves the discovery document agents use to recognise the
// bridge while scanning candidate ports.
func identityHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(wire.ServerIdentity()); err != nil {
		slog.Debug("identity response write failed", "error", err)
	}
}

func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, snapshot.ErrNotFound) {
		return huma.Error404NotFound(err.Error())
	}
	var coded *bridge.CodedError
	if errors.As(err, &coded) {
		switch coded.Code {
		case bridge.CodeValidation:
			return huma.Error400BadRequest(coded.Message)
		case bridge.CodeNoConnection:
			return huma.Error503ServiceUnavailable(coded.Message)
		case bridge.CodeConnectionLost, bridge.CodeAgentError:
			return huma.Error502BadGateway(coded.Message)
		case bridge.CodeTimeout:
			return huma.Error504GatewayTimeout(coded.Message)
		default:
			return huma.Error500InternalServerError(fmt.Sprintf("%s: %s", coded.Code, coded.Message))
		}
	}
	return huma.Error500InternalServerError(err.Error())
}

// msDuration converts a request's millisecond field to a Duration. Zero means
// "use the class default"; negative values pass through so the gateway can
// reject them.
func msDuration(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
