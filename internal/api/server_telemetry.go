package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/dgnsrekt/devtools_bridge/internal/telemetry"
)

func registerTelemetryHandlers(api huma.API, svc Service) {
	type entriesOutput struct {
		Body struct {
			Entries []telemetry.Entry `json:"entries"`
			Count   int               `json:"count"`
		}
	}

	type consoleInput struct {
		Level string `query:"level" doc:"Filter: log, error or all (default all)"`
		Limit int    `query:"limit" doc:"Max entries returned (default 50)"`
	}
	huma.Register(api, huma.Operation{OperationID: "console-logs", Method: http.MethodGet, Path: "/api/v1/telemetry/console", Summary: "Query buffered console output", Tags: []string{"Telemetry"}},
		func(ctx context.Context, input *consoleInput) (*entriesOutput, error) {
			entries, err := svc.ConsoleLogs(input.Level, input.Limit)
			if err != nil {
				return nil, mapErr(err)
			}
			out := &entriesOutput{}
			out.Body.Entries = entries
			if out.Body.Entries == nil {
				out.Body.Entries = []telemetry.Entry{}
			}
			out.Body.Count = len(out.Body.Entries)
			return out, nil
		})

	type networkInput struct {
		Status string `query:"status" doc:"Filter: all or error (default all)"`
		Limit  int    `query:"limit" doc:"Max entries returned (default 50)"`
	}
	huma.Register(api, huma.Operation{OperationID: "network-events", Method: http.MethodGet, Path: "/api/v1/telemetry/network", Summary: "Query buffered network activity", Tags: []string{"Telemetry"}},
		func(ctx context.Context, input *networkInput) (*entriesOutput, error) {
			entries, err := svc.NetworkEvents(input.Status, input.Limit)
			if err != nil {
				return nil, mapErr(err)
			}
			out := &entriesOutput{}
			out.Body.Entries = entries
			if out.Body.Entries == nil {
				out.Body.Entries = []telemetry.Entry{}
			}
			out.Body.Count = len(out.Body.Entries)
			return out, nil
		})

	type selectedOutput struct {
		Body telemetry.Entry
	}
	huma.Register(api, huma.Operation{OperationID: "selected-element", Method: http.MethodGet, Path: "/api/v1/telemetry/selected-element", Summary: "Last element picked in the inspector", Tags: []string{"Telemetry"}},
		func(ctx context.Context, input *struct{}) (*selectedOutput, error) {
			entry, ok := svc.SelectedElement()
			if !ok {
				return nil, huma.Error404NotFound("no element selected yet")
			}
			out := &selectedOutput{}
			out.Body = entry
			return out, nil
		})

	type countsOutput struct {
		Body struct {
			Counts map[string]int `json:"counts"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "telemetry-counts", Method: http.MethodGet, Path: "/api/v1/telemetry", Summary: "Telemetry buffer occupancy", Tags: []string{"Telemetry"}},
		func(ctx context.Context, input *struct{}) (*countsOutput, error) {
			out := &countsOutput{}
			out.Body.Counts = svc.TelemetryCounts()
			return out, nil
		})

	type wipeOutput struct {
		Body struct {
			Status string `json:"status"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "wipe-telemetry", Method: http.MethodDelete, Path: "/api/v1/telemetry", Summary: "Clear every telemetry buffer", Tags: []string{"Telemetry"}},
		func(ctx context.Context, input *struct{}) (*wipeOutput, error) {
			svc.WipeTelemetry()
			out := &wipeOutput{}
			out.Body.Status = "wiped"
			return out, nil
		})
}
