// Package gateway exposes the bridge's tool operations. Each operation
// validates its arguments, builds the agent command, dispatches with a
// per-class timeout and maps the outcome; telemetry reads never touch the
// wire.
package gateway

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dgnsrekt/devtools_bridge/internal/bridge"
	"github.com/dgnsrekt/devtools_bridge/internal/debugport"
	"github.com/dgnsrekt/devtools_bridge/internal/snapshot"
	"github.com/dgnsrekt/devtools_bridge/internal/telemetry"
	"github.com/dgnsrekt/devtools_bridge/internal/wire"
)

const defaultQueryLimit = 50

// Dispatcher sends one correlated command and waits for its reply.
type Dispatcher interface {
	Dispatch(ctx context.Context, cmd wire.Command, timeout time.Duration) (json.RawMessage, error)
	PendingCount() int
}

// Timeouts holds the per-command-class reply budgets.
type Timeouts struct {
	DOM        time.Duration
	Navigation time.Duration
	Screenshot time.Duration
}

func (t Timeouts) withDefaults() Timeouts {
	if t.DOM <= 0 {
		t.DOM = 5 * time.Second
	}
	if t.Navigation <= 0 {
		t.Navigation = 15 * time.Second
	}
	if t.Screenshot <= 0 {
		t.Screenshot = 10 * time.Second
	}
	return t
}

// Service wraps the tool operations offered to stateless clients.
type Service struct {
	disp     Dispatcher
	reg      *bridge.Registry
	tel      *telemetry.Store
	snaps    *snapshot.Store
	probe    *debugport.Prober
	timeouts Timeouts
}

// NewService builds a Service. probe may be nil when no debugging endpoint
// is configured; deep health then skips the engine section.
func NewService(disp Dispatcher, reg *bridge.Registry, tel *telemetry.Store, snaps *snapshot.Store, probe *debugport.Prober, timeouts Timeouts) *Service {
	return &Service{
		disp:     disp,
		reg:      reg,
		tel:      tel,
		snaps:    snaps,
		probe:    probe,
		timeouts: timeouts.withDefaults(),
	}
}

func (s *Service) requireNonEmpty(value, fieldName string) error {
	if strings.TrimSpace(value) == "" {
		return &bridge.CodedError{Code: bridge.CodeValidation, Message: fieldName + " is required"}
	}
	return nil
}

// resolveTimeout applies the class default when the caller gave none.
func (s *Service) resolveTimeout(explicit, classDefault time.Duration) (time.Duration, error) {
	if explicit < 0 {
		return 0, &bridge.CodedError{Code: bridge.CodeValidation, Message: "timeout must not be negative"}
	}
	if explicit == 0 {
		return classDefault, nil
	}
	return explicit, nil
}

// dispatch is the single funnel to the correlator. Panics anywhere under it
// become INTERNAL errors instead of escaping to the transport or API layer.
func (s *Service) dispatch(ctx context.Context, cmd wire.Command, timeout time.Duration) (raw json.RawMessage, err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic during dispatch", "type", cmd.Type, "panic", r)
			err = &bridge.CodedError{Code: bridge.CodeInternal, Message: fmt.Sprintf("internal failure dispatching %s", cmd.Type)}
		}
	}()
	return s.disp.Dispatch(ctx, cmd, timeout)
}

// dispatchObject dispatches and decodes the reply data as a JSON object.
func (s *Service) dispatchObject(ctx context.Context, cmd wire.Command, timeout time.Duration) (map[string]any, error) {
	raw, err := s.dispatch(ctx, cmd, timeout)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return map[string]any{}, nil
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, &bridge.CodedError{Code: bridge.CodeAgentError, Message: "reply payload is not a JSON object", Cause: err}
	}
	return out, nil
}

// currentAgentID names the connection a dispatch issued now would use.
func (s *Service) currentAgentID() string {
	if peer, ok := s.reg.SelectOne(); ok {
		return peer.ID()
	}
	return ""
}

// CaptureScreenshot asks the agent for pixels and archives them.
func (s *Service) CaptureScreenshot(ctx context.Context, format string, quality int, fullPage bool, notes string, timeout time.Duration) (snapshot.Meta, error) {
	format = strings.ToLower(strings.TrimSpace(format))
	if format == "" {
		format = "png"
	}
	if format != "png" && format != "jpeg" {
		return snapshot.Meta{}, &bridge.CodedError{Code: bridge.CodeValidation, Message: "format must be \"png\" or \"jpeg\""}
	}
	if quality < 0 || quality > 100 {
		return snapshot.Meta{}, &bridge.CodedError{Code: bridge.CodeValidation, Message: "quality must be between 0 and 100"}
	}
	t, err := s.resolveTimeout(timeout, s.timeouts.Screenshot)
	if err != nil {
		return snapshot.Meta{}, err
	}

	fields := map[string]any{"format": format, "fullPage": fullPage}
	if quality > 0 {
		fields["quality"] = quality
	}
	agentID := s.currentAgentID()

	raw, err := s.dispatch(ctx, wire.Command{Type: wire.TagTakeScreenshot, Fields: fields}, t)
	if err != nil {
		return snapshot.Meta{}, err
	}

	var body struct {
		Data string `json:"data"`
	}
	if err := json.Unmarshal(raw, &body); err != nil || body.Data == "" {
		return snapshot.Meta{}, &bridge.CodedError{Code: bridge.CodeAgentError, Message: "screenshot reply carries no image data", Cause: err}
	}
	imageData, err := decodeImageData(body.Data)
	if err != nil {
		return snapshot.Meta{}, &bridge.CodedError{Code: bridge.CodeAgentError, Message: fmt.Sprintf("decode screenshot data: %v", err)}
	}

	meta := snapshot.Meta{
		ID:       uuid.NewString(),
		AgentID:  agentID,
		Format:   format,
		FullPage: fullPage,
		Quality:  quality,
		Notes:    strings.TrimSpace(notes),
	}
	if pageURL, _, ok := s.tel.PageURL(); ok {
		meta.PageURL = pageURL
	}

	saved, err := s.snaps.Save(meta, imageData)
	if err != nil {
		return snapshot.Meta{}, &bridge.CodedError{Code: bridge.CodeInternal, Message: fmt.Sprintf("save snapshot: %v", err)}
	}
	return saved, nil
}

// ClickElement clicks by CSS selector or page coordinates.
func (s *Service) ClickElement(ctx context.Context, selector string, x, y *int, timeout time.Duration) (map[string]any, error) {
	selector = strings.TrimSpace(selector)
	if selector == "" && (x == nil || y == nil) {
		return nil, &bridge.CodedError{Code: bridge.CodeValidation, Message: "selector or both coordinates required"}
	}
	if (x != nil && *x < 0) || (y != nil && *y < 0) {
		return nil, &bridge.CodedError{Code: bridge.CodeValidation, Message: "coordinates must be >= 0"}
	}
	t, err := s.resolveTimeout(timeout, s.timeouts.DOM)
	if err != nil {
		return nil, err
	}

	fields := map[string]any{}
	if selector != "" {
		fields["selector"] = selector
	}
	if x != nil && y != nil {
		fields["x"] = *x
		fields["y"] = *y
	}
	return s.dispatchObject(ctx, wire.Command{Type: wire.TagClickElement, Fields: fields}, t)
}

// ReadStorage reads cookies or web storage from the live page.
func (s *Service) ReadStorage(ctx context.Context, kind string, timeout time.Duration) (map[string]any, error) {
	kind = strings.ToLower(strings.TrimSpace(kind))
	if kind != "cookies" && kind != "local" && kind != "session" {
		return nil, &bridge.CodedError{Code: bridge.CodeValidation, Message: "kind must be one of: cookies, local, session"}
	}
	t, err := s.resolveTimeout(timeout, s.timeouts.DOM)
	if err != nil {
		return nil, err
	}

	fields := map[string]any{"kind": kind}
	return s.dispatchObject(ctx, wire.Command{Type: wire.TagReadStorage, Fields: fields}, t)
}

// Navigate points the page at a new URL.
func (s *Service) Navigate(ctx context.Context, rawURL string, timeout time.Duration) (map[string]any, error) {
	if err := s.requireNonEmpty(rawURL, "url"); err != nil {
		return nil, err
	}
	rawURL = strings.TrimSpace(rawURL)
	parsed, err := url.Parse(rawURL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return nil, &bridge.CodedError{Code: bridge.CodeValidation, Message: "url must be absolute http(s)"}
	}
	t, err := s.resolveTimeout(timeout, s.timeouts.Navigation)
	if err != nil {
		return nil, err
	}

	fields := map[string]any{"url": rawURL}
	return s.dispatchObject(ctx, wire.Command{Type: wire.TagNavigate, Fields: fields}, t)
}

// SelectedElement returns the most recent element pick, if any.
func (s *Service) SelectedElement() (telemetry.Entry, bool) {
	return s.tel.SelectedElement()
}

// ConsoleLogs returns buffered console telemetry, newest window first by
// position. level filters: "log", "error", or "all"/empty for both merged
// by receive time.
func (s *Service) ConsoleLogs(level string, limit int) ([]telemetry.Entry, error) {
	limit, err := s.resolveLimit(limit)
	if err != nil {
		return nil, err
	}

	switch strings.ToLower(strings.TrimSpace(level)) {
	case "log":
		return s.tel.ConsoleLogs(limit), nil
	case "error":
		return s.tel.ConsoleErrors(limit), nil
	case "", "all":
		merged := append(s.tel.ConsoleLogs(0), s.tel.ConsoleErrors(0)...)
		sort.SliceStable(merged, func(i, j int) bool {
			return merged[i].ReceivedAt.Before(merged[j].ReceivedAt)
		})
		if len(merged) > limit {
			merged = merged[len(merged)-limit:]
		}
		return merged, nil
	default:
		return nil, &bridge.CodedError{Code: bridge.CodeValidation, Message: "level must be one of: log, error, all"}
	}
}

// NetworkEvents returns buffered network telemetry. status "error" keeps
// only responses with status >= 400.
func (s *Service) NetworkEvents(status string, limit int) ([]telemetry.Entry, error) {
	limit, err := s.resolveLimit(limit)
	if err != nil {
		return nil, err
	}

	switch strings.ToLower(strings.TrimSpace(status)) {
	case "", "all":
		return s.tel.NetworkEvents(limit), nil
	case "error":
		all := s.tel.NetworkEvents(0)
		var failed []telemetry.Entry
		for _, e := range all {
			if isFailedRequest(e) {
				failed = append(failed, e)
			}
		}
		if len(failed) > limit {
			failed = failed[len(failed)-limit:]
		}
		return failed, nil
	default:
		return nil, &bridge.CodedError{Code: bridge.CodeValidation, Message: "status must be one of: all, error"}
	}
}

func (s *Service) resolveLimit(limit int) (int, error) {
	if limit < 0 {
		return 0, &bridge.CodedError{Code: bridge.CodeValidation, Message: "limit must not be negative"}
	}
	if limit == 0 {
		return defaultQueryLimit, nil
	}
	return limit, nil
}

func isFailedRequest(e telemetry.Entry) bool {
	data, ok := e.Data.(map[string]any)
	if !ok {
		return false
	}
	if failed, ok := data["failed"].(bool); ok && failed {
		return true
	}
	status, ok := data["status"].(float64)
	return ok && status >= 400
}

// WipeTelemetry clears every telemetry buffer.
func (s *Service) WipeTelemetry() {
	s.tel.Wipe()
}

// TelemetryCounts reports buffer occupancy per category.
func (s *Service) TelemetryCounts() map[string]int {
	return s.tel.Counts()
}

// ListSnapshots returns archived captures, newest first.
func (s *Service) ListSnapshots() ([]snapshot.Meta, error) {
	return s.snaps.List()
}

// GetSnapshot returns one capture's metadata.
func (s *Service) GetSnapshot(id string) (snapshot.Meta, error) {
	if err := s.requireNonEmpty(id, "snapshot_id"); err != nil {
		return snapshot.Meta{}, err
	}
	meta, err := s.snaps.Get(strings.TrimSpace(id))
	if err != nil {
		return snapshot.Meta{}, mapSnapshotErr(err)
	}
	return meta, nil
}

// ReadSnapshotImage returns raw image bytes and their format.
func (s *Service) ReadSnapshotImage(id string) ([]byte, string, error) {
	if err := s.requireNonEmpty(id, "snapshot_id"); err != nil {
		return nil, "", err
	}
	data, format, err := s.snaps.ReadImage(strings.TrimSpace(id))
	if err != nil {
		return nil, "", mapSnapshotErr(err)
	}
	return data, format, nil
}

// DeleteSnapshot removes one capture.
func (s *Service) DeleteSnapshot(id string) error {
	if err := s.requireNonEmpty(id, "snapshot_id"); err != nil {
		return err
	}
	if err := s.snaps.Delete(strings.TrimSpace(id)); err != nil {
		return mapSnapshotErr(err)
	}
	return nil
}

// mapSnapshotErr keeps ErrNotFound recognizable for the API layer and folds
// everything else into VALIDATION (bad ids are the only other store input
// failure).
func mapSnapshotErr(err error) error {
	if errors.Is(err, snapshot.ErrNotFound) {
		return err
	}
	return &bridge.CodedError{Code: bridge.CodeValidation, Message: err.Error()}
}

// Agents lists registered connections.
func (s *Service) Agents() []bridge.AgentInfo {
	return s.reg.List()
}

// HealthReport is the shallow liveness view.
type HealthReport struct {
	Status     string `json:"status"`
	AgentCount int    `json:"agent_count"`
}

// DeepHealthReport adds correlation and engine detail.
type DeepHealthReport struct {
	Status          string             `json:"status"`
	Agents          []bridge.AgentInfo `json:"agents"`
	PendingRequests int                `json:"pending_requests"`
	TelemetryCounts map[string]int     `json:"telemetry_counts"`
	Engine          *debugport.Status  `json:"engine,omitempty"`
}

// Health reports whether at least one agent is connected.
func (s *Service) Health() HealthReport {
	n := s.reg.Len()
	status := "ok"
	if n == 0 {
		status = "degraded"
	}
	return HealthReport{Status: status, AgentCount: n}
}

// DeepHealth reports agents, pending requests, telemetry occupancy and the
// page-analysis engine's debug endpoint when configured.
func (s *Service) DeepHealth(ctx context.Context) DeepHealthReport {
	report := DeepHealthReport{
		Status:          s.Health().Status,
		Agents:          s.reg.List(),
		PendingRequests: s.disp.PendingCount(),
		TelemetryCounts: s.tel.Counts(),
	}
	if s.probe != nil {
		st := s.probe.Check(ctx)
		report.Engine = &st
		if !st.Reachable {
			report.Status = "degraded"
		}
	}
	return report
}

// decodeImageData accepts raw base64 or a data URL.
func decodeImageData(payload string) ([]byte, error) {
	if strings.HasPrefix(payload, "data:") {
		parts := strings.SplitN(payload, ",", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid data URL format")
		}
		payload = parts[1]
	}
	return base64.StdEncoding.DecodeString(payload)
}
