package filemanifest_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/barnettlynn/desfire/desfire"
	"github.com/barnettlynn/desfire/internal/filemanifest"
	"github.com/barnettlynn/desfire/internal/simulator"
)

const sample = `
applications:
  - aid: "010203"
    key_settings: 0x0F
    key_count: 1
    files:
      - file_no: 0
        type: standard
        comms: plain
        access: 0xEEEE
        size: 32
      - file_no: 1
        type: value
        comms: cmac
        access: 0xEEEE
        min: 0
        max: 1000
        value: 0
`

func writeManifest(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "manifest.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}
	return path
}

func TestLoadParsesApplicationsAndFiles(t *testing.T) {
	path := writeManifest(t, sample)
	m, err := filemanifest.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(m.Applications) != 1 {
		t.Fatalf("got %d applications, want 1", len(m.Applications))
	}
	app := m.Applications[0]
	if len(app.Files) != 2 {
		t.Fatalf("got %d files, want 2", len(app.Files))
	}
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	_, err := filemanifest.Load(writeManifest(t, sample+"\nbogus_field: true\n"))
	if err == nil {
		t.Fatal("expected an error for an unknown top-level field")
	}
}

func TestLoadRejectsBadFileType(t *testing.T) {
	bad := `
applications:
  - aid: "010203"
    key_settings: 0x0F
    key_count: 1
    files:
      - file_no: 0
        type: not-a-type
        comms: plain
        access: 0
        size: 32
`
	_, err := filemanifest.Load(writeManifest(t, bad))
	if err == nil {
		t.Fatal("expected an error for an unknown file type")
	}
}

func TestApplyProvisionsApplicationAndFiles(t *testing.T) {
	ctx := context.Background()
	masterKey := make([]byte, 16)
	card := simulator.NewCard([7]byte{0x04, 0x11, 0x22, 0x33, 0x44, 0x55, 0x66}, masterKey)
	s := desfire.NewSession(card)
	if err := s.AuthenticateAES(ctx, 0, masterKey); err != nil {
		t.Fatalf("authenticate: %v", err)
	}

	m, err := filemanifest.Load(writeManifest(t, sample))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := filemanifest.Apply(ctx, s, m, masterKey); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	payload := []byte("provisioned file contents!")[:32]
	if err := s.WriteData(ctx, 0, desfire.CommsPlain, 0, payload); err != nil {
		t.Fatalf("WriteData into provisioned file: %v", err)
	}
	got, err := s.ReadData(ctx, 0, desfire.CommsPlain, 0, uint32(len(payload)))
	if err != nil {
		t.Fatalf("ReadData: %v", err)
	}
	if string(got) != string(payload) {
		t.Fatalf("ReadData = %q, want %q", got, payload)
	}
}
