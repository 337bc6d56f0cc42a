package filemanifest

import (
	"context"
	"fmt"

	"github.com/barnettlynn/desfire/desfire"
)

// Apply provisions every application and file in m over an already
// master-key-authenticated session at the PICC level. It leaves the
// session selected into (and authenticated against key 0 of) the last
// application it provisions.
func Apply(ctx context.Context, s *desfire.Session, m *Manifest, appKey []byte) error {
	for _, app := range m.Applications {
		aid, err := parseAID(app.AID)
		if err != nil {
			return err
		}
		if err := s.CreateApplication(ctx, aid, app.KeySettings, app.KeyCount); err != nil {
			return fmt.Errorf("create application %s: %w", app.AID, err)
		}
		if err := s.SelectApplication(ctx, aid); err != nil {
			return fmt.Errorf("select application %s: %w", app.AID, err)
		}
		if err := s.AuthenticateAES(ctx, 0, appKey); err != nil {
			return fmt.Errorf("authenticate into application %s: %w", app.AID, err)
		}
		for _, f := range app.Files {
			if err := createFile(ctx, s, f); err != nil {
				return fmt.Errorf("application %s file %d: %w", app.AID, f.FileNo, err)
			}
		}
	}
	return nil
}

func createFile(ctx context.Context, s *desfire.Session, f File) error {
	t, err := fileType(f.Type)
	if err != nil {
		return err
	}
	comms, err := commsMode(f.Comms)
	if err != nil {
		return err
	}
	return s.CreateFile(ctx, f.FileNo, t, comms, f.Access, f.Size, f.Min, f.Max, f.Value, f.RecordSize, f.MaxRecords)
}
