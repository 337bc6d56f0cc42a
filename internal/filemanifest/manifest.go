// Package filemanifest loads a YAML description of the applications and
// files a card should have, and provisions them over a desfire.Session.
package filemanifest

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/barnettlynn/desfire/desfire"
)

// Manifest describes every application and file dfctl should create on
// a freshly formatted card.
type Manifest struct {
	Applications []Application `yaml:"applications"`
}

// Application describes one DESFire application and its files.
type Application struct {
	AID         string `yaml:"aid"` // 3-byte hex, e.g. "010203"
	KeySettings byte   `yaml:"key_settings"`
	KeyCount    byte   `yaml:"key_count"`
	Files       []File `yaml:"files"`
}

// File describes one file to create inside an application.
type File struct {
	FileNo byte   `yaml:"file_no"`
	Type   string `yaml:"type"`  // standard, backup, value, linear, cyclic
	Comms  string `yaml:"comms"` // plain, cmac, encrypted

	Access uint16 `yaml:"access"` // hex-style access rights word

	// Standard / backup data files.
	Size uint32 `yaml:"size"`

	// Value files.
	Min   int32 `yaml:"min"`
	Max   int32 `yaml:"max"`
	Value int32 `yaml:"value"`

	// Linear / cyclic record files.
	RecordSize uint32 `yaml:"record_size"`
	MaxRecords uint32 `yaml:"max_records"`
}

// Load reads and validates a manifest file.
func Load(path string) (*Manifest, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	var m Manifest
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Validate checks structural constraints the parser itself can't, such
// as AID length and enum spelling.
func (m *Manifest) Validate() error {
	for i, app := range m.Applications {
		if len(app.AID) != 6 {
			return fmt.Errorf("applications[%d].aid must be 6 hex digits, got %q", i, app.AID)
		}
		for j, f := range app.Files {
			if _, err := fileType(f.Type); err != nil {
				return fmt.Errorf("applications[%d].files[%d]: %w", i, j, err)
			}
			if _, err := commsMode(f.Comms); err != nil {
				return fmt.Errorf("applications[%d].files[%d]: %w", i, j, err)
			}
		}
	}
	return nil
}

func fileType(s string) (desfire.FileType, error) {
	switch strings.ToLower(s) {
	case "standard":
		return desfire.FileStandardData, nil
	case "backup":
		return desfire.FileBackupData, nil
	case "value":
		return desfire.FileValue, nil
	case "linear":
		return desfire.FileLinearRecord, nil
	case "cyclic":
		return desfire.FileCyclicRecord, nil
	default:
		return 0, fmt.Errorf("unknown file type %q", s)
	}
}

func commsMode(s string) (desfire.CommsMode, error) {
	switch strings.ToLower(s) {
	case "plain":
		return desfire.CommsPlain, nil
	case "cmac":
		return desfire.CommsCMAC, nil
	case "encrypted":
		return desfire.CommsEncrypted, nil
	default:
		return 0, fmt.Errorf("unknown comms mode %q", s)
	}
}

func parseAID(s string) ([3]byte, error) {
	var aid [3]byte
	if _, err := fmt.Sscanf(s, "%02x%02x%02x", &aid[0], &aid[1], &aid[2]); err != nil {
		return aid, fmt.Errorf("invalid aid %q: %w", s, err)
	}
	return aid, nil
}
