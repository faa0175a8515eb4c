package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/dgnsrekt/devtools_bridge/internal/snapshot"
)

func registerToolHandlers(api huma.API, svc Service) {
	type screenshotOutput struct {
		Body struct {
			Snapshot snapshot.Meta `json:"snapshot"`
			URL      string        `json:"url"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "capture-screenshot", Method: http.MethodPost, Path: "/api/v1/tools/screenshot", Summary: "Capture a screenshot of the live page", Tags: []string{"Tools"}},
		func(ctx context.Context, input *struct {
			Body struct {
				Format    string `json:"format,omitempty" doc:"Image format: png (default) or jpeg"`
				Quality   int    `json:"quality,omitempty" doc:"JPEG quality 1-100 (ignored for PNG)"`
				FullPage  bool   `json:"full_page,omitempty" doc:"Capture the full scrollable page"`
				Notes     string `json:"notes,omitempty" doc:"Free-form annotation stored with the snapshot"`
				TimeoutMS int    `json:"timeout_ms,omitempty" doc:"Reply budget override in milliseconds (default 10000)"`
			}
		}) (*screenshotOutput, error) {
			meta, err := svc.CaptureScreenshot(ctx, input.Body.Format, input.Body.Quality, input.Body.FullPage, input.Body.Notes, msDuration(input.Body.TimeoutMS))
			if err != nil {
				return nil, mapErr(err)
			}
			out := &screenshotOutput{}
			out.Body.Snapshot = meta
			out.Body.URL = "/api/v1/snapshots/" + meta.ID + "/image"
			return out, nil
		})

	type clickOutput struct {
		Body struct {
			Result map[string]any `json:"result"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "click-element", Method: http.MethodPost, Path: "/api/v1/tools/click", Summary: "Click an element by selector or page coordinates", Tags: []string{"Tools"}},
		func(ctx context.Context, input *struct {
			Body struct {
				Selector  string `json:"selector,omitempty" doc:"CSS selector of the element to click"`
				X         *int   `json:"x,omitempty" doc:"Page X coordinate; requires y"`
				Y         *int   `json:"y,omitempty" doc:"Page Y coordinate; requires x"`
				TimeoutMS int    `json:"timeout_ms,omitempty" doc:"Reply budget override in milliseconds (default 5000)"`
			}
		}) (*clickOutput, error) {
			result, err := svc.ClickElement(ctx, input.Body.Selector, input.Body.X, input.Body.Y, msDuration(input.Body.TimeoutMS))
			if err != nil {
				return nil, mapErr(err)
			}
			out := &clickOutput{}
			out.Body.Result = result
			return out, nil
		})

	type storageInput struct {
		Kind      string `path:"kind" doc:"Storage kind: cookies, local or session"`
		TimeoutMS int    `query:"timeout_ms" doc:"Reply budget override in milliseconds (default 5000)"`
	}
	type storageOutput struct {
		Body struct {
			Kind string         `json:"kind"`
			Data map[string]any `json:"data"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "read-storage", Method: http.MethodGet, Path: "/api/v1/tools/storage/{kind}", Summary: "Read cookies or web storage from the live page", Tags: []string{"Tools"}},
		func(ctx context.Context, input *storageInput) (*storageOutput, error) {
			data, err := svc.ReadStorage(ctx, input.Kind, msDuration(input.TimeoutMS))
			if err != nil {
				return nil, mapErr(err)
			}
			out := &storageOutput{}
			out.Body.Kind = input.Kind
			out.Body.Data = data
			return out, nil
		})

	type navigateOutput struct {
		Body struct {
			URL    string         `json:"url"`
			Result map[string]any `json:"result"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "navigate", Method: http.MethodPost, Path: "/api/v1/tools/navigate", Summary: "Navigate the page to a new URL", Tags: []string{"Tools"}},
		func(ctx context.Context, input *struct {
			Body struct {
				URL       string `json:"url" doc:"Absolute http(s) URL to load"`
				TimeoutMS int    `json:"timeout_ms,omitempty" doc:"Reply budget override in milliseconds (default 15000)"`
			}
		}) (*navigateOutput, error) {
			result, err := svc.Navigate(ctx, input.Body.URL, msDuration(input.Body.TimeoutMS))
			if err != nil {
				return nil, mapErr(err)
			}
			out := &navigateOutput{}
			out.Body.URL = input.Body.URL
			out.Body.Result = result
			return out, nil
		})
}
