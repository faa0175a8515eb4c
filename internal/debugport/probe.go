// Package debugport probes the page-analysis engine's remote debugging
// HTTP endpoint. The bridge never drives the engine itself; the probe only
// answers "is the engine up and how many page targets does it expose" for
// the deep-health report.
package debugport

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/chromedp/cdproto/target"
)

// Prober checks a single debugging endpoint, e.g. "http://127.0.0.1:9222".
type Prober struct {
	base string
}

// NewProber returns a Prober for the given base URL.
func NewProber(base string) *Prober {
	return &Prober{base: strings.TrimRight(base, "/")}
}

// VersionInfo mirrors the /json/version payload.
type VersionInfo struct {
	Browser              string `json:"Browser"`
	ProtocolVersion      string `json:"Protocol-Version"`
	WebSocketDebuggerURL string `json:"webSocketDebuggerUrl"`
}

// Status summarizes one probe round for health reporting.
type Status struct {
	Reachable bool   `json:"reachable"`
	Browser   string `json:"browser,omitempty"`
	Protocol  string `json:"protocol,omitempty"`
	PageCount int    `json:"page_count"`
	Error     string `json:"error,omitempty"`
}

// Version fetches engine identity from /json/version.
func (p *Prober) Version(ctx context.Context) (VersionInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.base+"/json/version", nil)
	if err != nil {
		return VersionInfo{}, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return VersionInfo{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return VersionInfo{}, fmt.Errorf("debugport: /json/version: HTTP %d", resp.StatusCode)
	}

	var info VersionInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return VersionInfo{}, err
	}
	return info, nil
}

// Targets fetches open targets via the HTTP /json/list endpoint.
func (p *Prober) Targets(ctx context.Context) ([]*target.Info, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.base+"/json/list", nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("debugport: /json/list: HTTP %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var entries []struct {
		ID    string `json:"id"`
		Type  string `json:"type"`
		Title string `json:"title"`
		URL   string `json:"url"`
	}
	if err := json.Unmarshal(body, &entries); err != nil {
		return nil, err
	}

	out := make([]*target.Info, 0, len(entries))
	for _, e := range entries {
		out = append(out, &target.Info{
			TargetID: target.ID(e.ID),
			Type:     e.Type,
			Title:    e.Title,
			URL:      e.URL,
		})
	}
	return out, nil
}

// Check probes the endpoint and folds the result into a Status. A probe
// failure is reported inside the Status, never as an error; deep health
// must not fail just because the engine is down.
func (p *Prober) Check(ctx context.Context) Status {
	info, err := p.Version(ctx)
	if err != nil {
		return Status{Error: err.Error()}
	}

	st := Status{Reachable: true, Browser: info.Browser, Protocol: info.ProtocolVersion}
	targets, err := p.Targets(ctx)
	if err != nil {
		st.Error = err.Error()
		return st
	}
	for _, t := range targets {
		if t.Type == "page" {
			st.PageCount++
		}
	}
	return st
}
