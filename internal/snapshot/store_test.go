package snapshot

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	return store
}

func TestSaveComputesDerivedFields(t *testing.T) {
	store := newTestStore(t)
	img := []byte("not really a png but good enough")

	meta, err := store.Save(Meta{
		ID:      uuid.NewString(),
		AgentID: uuid.NewString(),
		Format:  "png",
		PageURL: "https://example.com/checkout",
	}, img)
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	if meta.SizeBytes != len(img) {
		t.Fatalf("SizeBytes = %d; want %d", meta.SizeBytes, len(img))
	}
	sum := sha256.Sum256(img)
	if want := hex.EncodeToString(sum[:]); meta.SHA256 != want {
		t.Fatalf("SHA256 = %q; want %q", meta.SHA256, want)
	}
	if meta.CreatedAt.IsZero() {
		t.Fatalf("CreatedAt not defaulted")
	}

	got, err := store.Get(meta.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.SHA256 != meta.SHA256 || got.PageURL != meta.PageURL {
		t.Fatalf("Get() = %+v; want %+v", got, meta)
	}
}

func TestSaveRejectsBadInput(t *testing.T) {
	store := newTestStore(t)

	tests := []struct {
		name string
		meta Meta
		img  []byte
	}{
		{"bad_id", Meta{ID: "../../etc/passwd", Format: "png"}, []byte("x")},
		{"uppercase_id", Meta{ID: "123E4567-E89B-12D3-A456-426614174000", Format: "png"}, []byte("x")},
		{"bad_format", Meta{ID: uuid.NewString(), Format: "svg"}, []byte("x")},
		{"empty_image", Meta{ID: uuid.NewString(), Format: "png"}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := store.Save(tt.meta, tt.img); err == nil {
				t.Fatalf("Save() error = nil; want failure")
			}
		})
	}
}

func TestReadImageRoundTrip(t *testing.T) {
	store := newTestStore(t)
	img := []byte{0x89, 0x50, 0x4e, 0x47, 0x00, 0x01, 0x02}

	meta, err := store.Save(Meta{ID: uuid.NewString(), Format: "png"}, img)
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	data, format, err := store.ReadImage(meta.ID)
	if err != nil {
		t.Fatalf("ReadImage() error = %v", err)
	}
	if format != "png" {
		t.Fatalf("format = %q; want %q", format, "png")
	}
	if !bytes.Equal(data, img) {
		t.Fatalf("ReadImage() = %v; want %v", data, img)
	}
}

func TestListNewestFirst(t *testing.T) {
	store := newTestStore(t)

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	var ids []string
	for i := 0; i < 3; i++ {
		id := uuid.NewString()
		ids = append(ids, id)
		_, err := store.Save(Meta{
			ID:        id,
			Format:    "png",
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}, []byte("img"))
		if err != nil {
			t.Fatalf("Save() error = %v", err)
		}
	}

	metas, err := store.List()
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(metas) != 3 {
		t.Fatalf("List() returned %d entries; want 3", len(metas))
	}
	if metas[0].ID != ids[2] || metas[2].ID != ids[0] {
		t.Fatalf("List() order = [%s %s %s]; want newest first", metas[0].ID, metas[1].ID, metas[2].ID)
	}
}

func TestDeleteRemovesBothFiles(t *testing.T) {
	store := newTestStore(t)

	meta, err := store.Save(Meta{ID: uuid.NewString(), Format: "jpeg"}, []byte("img"))
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	if err := store.Delete(meta.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := store.Get(meta.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get() after Delete() = %v; want ErrNotFound", err)
	}
	if _, err := os.Stat(filepath.Join(store.Dir(), meta.ID+".jpeg")); !os.IsNotExist(err) {
		t.Fatalf("image file still present after Delete()")
	}
}

func TestDeleteLogsImageCleanupFailureWhenImageMissing(t *testing.T) {
	store := newTestStore(t)
	id := uuid.NewString()

	// Sidecar without an image file.
	metaBytes := []byte(`{"id":"` + id + `","format":"png"}`)
	if err := os.WriteFile(filepath.Join(store.Dir(), id+".json"), metaBytes, 0o644); err != nil {
		t.Fatalf("os.WriteFile() failed: %v", err)
	}

	var buf bytes.Buffer
	oldLogger := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	t.Cleanup(func() {
		slog.SetDefault(oldLogger)
	})

	if err := store.Delete(id); err != nil {
		t.Fatalf("Delete() = %v; want nil", err)
	}
	if !strings.Contains(buf.String(), "snapshot image cleanup failed") {
		t.Fatalf("expected image cleanup debug log, got %q", buf.String())
	}
}
