package relay

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/dgnsrekt/devtools_bridge/internal/wire"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "relay.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
channels:
  - name: console
    events: [console-log, console-error]
  - name: everything
    events: [console-log, network-request, page-navigated]
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if got := cfg.ChannelNames(); !reflect.DeepEqual(got, []string{"console", "everything"}) {
		t.Fatalf("ChannelNames() = %v; want [console everything]", got)
	}
	if got := cfg.ChannelsFor("console-log"); !reflect.DeepEqual(got, []string{"console", "everything"}) {
		t.Fatalf("ChannelsFor(console-log) = %v; want [console everything]", got)
	}
	if got := cfg.ChannelsFor("selected-element"); got != nil {
		t.Fatalf("ChannelsFor(selected-element) = %v; want nil", got)
	}
}

func TestLoadConfigErrors(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{
			name:    "missing_name",
			body:    "channels:\n  - events: [console-log]\n",
			wantErr: "missing name",
		},
		{
			name:    "no_events",
			body:    "channels:\n  - name: console\n",
			wantErr: "lists no events",
		},
		{
			name:    "bad_yaml",
			body:    "channels: [unterminated",
			wantErr: "relay config",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tt.body))
			if err == nil {
				t.Fatalf("LoadConfig() error = nil; want %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("LoadConfig() error = %q; want substring %q", err, tt.wantErr)
			}
		})
	}

	t.Run("missing_file", func(t *testing.T) {
		if _, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
			t.Fatalf("LoadConfig() error = nil; want read failure")
		}
	})
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if got := cfg.ChannelNames(); !reflect.DeepEqual(got, []string{"console", "network", "page"}) {
		t.Fatalf("ChannelNames() = %v; want [console network page]", got)
	}
	if got := cfg.ChannelsFor(wire.TagConsoleLog); !reflect.DeepEqual(got, []string{"console"}) {
		t.Fatalf("ChannelsFor(%s) = %v; want [console]", wire.TagConsoleLog, got)
	}
	if got := cfg.ChannelsFor(wire.TagSelectedElement); !reflect.DeepEqual(got, []string{"page"}) {
		t.Fatalf("ChannelsFor(%s) = %v; want [page]", wire.TagSelectedElement, got)
	}
}
