package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/dgnsrekt/devtools_bridge/internal/bridge"
	"github.com/dgnsrekt/devtools_bridge/internal/gateway"
	"github.com/dgnsrekt/devtools_bridge/internal/relay"
)

func registerMiscHandlers(api huma.API, svc Service) {
	type healthOutput struct {
		Body gateway.HealthReport
	}
	huma.Register(api, huma.Operation{OperationID: "health", Method: http.MethodGet, Path: "/health", Summary: "Health check", Tags: []string{"Health"}},
		func(ctx context.Context, input *struct{}) (*healthOutput, error) {
			out := &healthOutput{}
			out.Body = svc.Health()
			return out, nil
		})

	type deepHealthOutput struct {
		Body gateway.DeepHealthReport
	}
	huma.Register(api, huma.Operation{OperationID: "deep-health", Method: http.MethodGet, Path: "/api/v1/health/deep", Summary: "Deep health check", Tags: []string{"Health"}},
		func(ctx context.Context, input *struct{}) (*deepHealthOutput, error) {
			out := &deepHealthOutput{}
			out.Body = svc.DeepHealth(ctx)
			if out.Body.Agents == nil {
				out.Body.Agents = []bridge.AgentInfo{}
			}
			return out, nil
		})

	type agentsOutput struct {
		Body struct {
			Agents []bridge.AgentInfo `json:"agents"`
			Count  int                `json:"count"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "list-agents", Method: http.MethodGet, Path: "/api/v1/agents", Summary: "List connected browser agents", Tags: []string{"Agents"}},
		func(ctx context.Context, input *struct{}) (*agentsOutput, error) {
			out := &agentsOutput{}
			out.Body.Agents = svc.Agents()
			if out.Body.Agents == nil {
				out.Body.Agents = []bridge.AgentInfo{}
			}
			out.Body.Count = len(out.Body.Agents)
			return out, nil
		})
}

func registerRelayHandlers(api huma.API, pub *relay.Publisher) {
	type relayStatusOutput struct {
		Body struct {
			Channels []string `json:"channels"`
			Clients  int      `json:"clients"`
			Dropped  int64    `json:"dropped"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "relay-status", Method: http.MethodGet, Path: "/api/v1/relay/status", Summary: "SSE relay channel and subscriber stats", Tags: []string{"Relay"}},
		func(ctx context.Context, input *struct{}) (*relayStatusOutput, error) {
			out := &relayStatusOutput{}
			out.Body.Channels = pub.Channels()
			out.Body.Clients = pub.Broker().ClientCount()
			out.Body.Dropped = pub.Broker().Dropped()
			return out, nil
		})
}
