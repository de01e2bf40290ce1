package packager

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zip"

	"github.com/saiset-co/sai-lru/types"
)

func TestBuildRoundTrip(t *testing.T) {
	b1 := []byte{0x7f, 'E', 'L', 'F', 0x00, 0x01, 0x02}
	b2 := []byte(`{"version":1,"capacity":5,"entries":[]}`)

	archive, err := Build([]Payload{
		{Name: "bootstrap", Source: FromBytes(b1)},
		{Name: "cache.json", Source: FromBytes(b2)},
	})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	entries, err := Extract(archive)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}

	if len(entries) != 2 {
		t.Fatalf("Expected 2 entries, got %d", len(entries))
	}

	want := []struct {
		name string
		data []byte
	}{{"bootstrap", b1}, {"cache.json", b2}}

	for i, w := range want {
		e := entries[i]
		if e.Name != w.name || !bytes.Equal(e.Data, w.data) {
			t.Errorf("Entry %d: got %s (%d bytes), want %s (%d bytes)", i, e.Name, len(e.Data), w.name, len(w.data))
		}
		if e.Method != zip.Store {
			t.Errorf("Entry %s is compressed with method %d", e.Name, e.Method)
		}
		if e.Mode.Perm() != EntryMode {
			t.Errorf("Entry %s has mode %v", e.Name, e.Mode.Perm())
		}
	}
}

func TestBuildIsDeterministic(t *testing.T) {
	payloads := []Payload{
		{Name: "bootstrap", Source: FromBytes([]byte("binary"))},
		{Name: "cache.json", Source: FromBytes([]byte("{}"))},
	}

	first, err := Build(payloads)
	if err != nil {
		t.Fatal(err)
	}
	second, err := Build(payloads)
	if err != nil {
		t.Fatal(err)
	}

	if !bytes.Equal(first, second) {
		t.Error("Identical payloads produced different archives")
	}
}

func TestBuildFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bootstrap")
	if err := os.WriteFile(path, []byte("exe"), 0755); err != nil {
		t.Fatal(err)
	}

	archive, err := Build([]Payload{{Name: "bootstrap", Source: FromFile(path)}})
	if err != nil {
		t.Fatal(err)
	}

	entries, _ := Extract(archive)
	if len(entries) != 1 || string(entries[0].Data) != "exe" {
		t.Errorf("Unexpected entries %+v", entries)
	}
}

func TestBuildErrors(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "nope")

	tests := []struct {
		name     string
		payloads []Payload
		errName  string
	}{
		{name: "no payloads"},
		{name: "missing file", payloads: []Payload{{Name: "bootstrap", Source: FromFile(missing)}}, errName: "bootstrap"},
		{name: "empty name", payloads: []Payload{{Name: "", Source: FromBytes(nil)}}},
		{name: "duplicate", payloads: []Payload{
			{Name: "a", Source: FromBytes(nil)},
			{Name: "a", Source: FromBytes(nil)},
		}, errName: "a"},
		{name: "nil source", payloads: []Payload{{Name: "a"}}, errName: "a"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Build(tt.payloads)

			var perr *PackagingError
			if !errors.As(err, &perr) {
				t.Fatalf("Expected *PackagingError, got %T (%v)", err, err)
			}
			if !errors.Is(err, types.ErrPackagingFailed) {
				t.Errorf("PackagingError must match ErrPackagingFailed")
			}
			if perr.Name != tt.errName {
				t.Errorf("Expected payload name %q, got %q", tt.errName, perr.Name)
			}
			if perr.StackTrace() == nil {
				t.Errorf("PackagingError must carry a stack")
			}
		})
	}

	_, err := Build([]Payload{{Name: "bootstrap", Source: FromFile(missing)}})
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Missing file cause must be preserved, got %v", err)
	}
}

func TestExtractRejectsGarbage(t *testing.T) {
	if _, err := Extract([]byte("definitely not a zip")); !errors.Is(err, types.ErrPackagingFailed) {
		t.Errorf("Expected ErrPackagingFailed, got %v", err)
	}
}
