package desfire

import "context"

// FileType identifies a DESFire file's storage model.
type FileType byte

const (
	FileStandardData FileType = 'D'
	FileBackupData   FileType = 'B'
	FileValue        FileType = 'V'
	FileLinearRecord FileType = 'L'
	FileCyclicRecord FileType = 'C'
)

func (t FileType) createCmd() (byte, error) {
	switch t {
	case FileStandardData:
		return cmdCreateFileStandard, nil
	case FileBackupData:
		return cmdCreateFileBackup, nil
	case FileValue:
		return cmdCreateFileValue, nil
	case FileLinearRecord:
		return cmdCreateFileLinear, nil
	case FileCyclicRecord:
		return cmdCreateFileCyclic, nil
	default:
		return 0, statusErr(0, KindParameterError)
	}
}

// CommsMode selects the comms-mode bits a file (or a single data
// operation against it) uses: plain, CMAC-verified, or fully encrypted.
type CommsMode byte

const (
	CommsPlain     CommsMode = 0x00
	CommsCMAC      CommsMode = 0x01
	CommsEncrypted CommsMode = 0x03
)

// FileSettings is the result of GetFileSettings, common to all file
// types; Min/Max/LimitedCreditEnabled apply to value files, RecordSize/
// MaxRecords/CurrentRecords to record files.
type FileSettings struct {
	Type    FileType
	Comms   CommsMode
	Access  uint16 // packed RW|Change|Read|Write nibbles, card order
	Size    uint32 // standard/backup data files
	Min     int32  // value files
	Max     int32
	LimitedCreditEnabled bool
	RecordSize    uint32 // record files
	MaxRecords    uint32
	CurrentRecords uint32
}

// CreateFile provisions a new file of the given type in the selected
// application. size is the byte size for D/B files, ignored otherwise;
// min/max/value are for value files; recordSize/maxRecords are for L/C
// files.
func (s *Session) CreateFile(ctx context.Context, fileNo byte, t FileType, comms CommsMode, access uint16, size uint32, min, max, value int32, recordSize, maxRecords uint32) error {
	cmd, err := t.createCmd()
	if err != nil {
		return err
	}
	payload := []byte{fileNo, byte(comms), byte(access), byte(access >> 8)}
	switch t {
	case FileStandardData, FileBackupData:
		payload = append(payload, byte(size), byte(size>>8), byte(size>>16))
	case FileValue:
		payload = append(payload,
			byte(min), byte(min>>8), byte(min>>16), byte(min>>24),
			byte(max), byte(max>>8), byte(max>>16), byte(max>>24),
			byte(value), byte(value>>8), byte(value>>16), byte(value>>24),
			0)
	case FileLinearRecord, FileCyclicRecord:
		payload = append(payload,
			byte(recordSize), byte(recordSize>>8), byte(recordSize>>16),
			byte(maxRecords), byte(maxRecords>>8), byte(maxRecords>>16))
	}
	_, err = s.dx(ctx, cmd, payload, TxModePlain, RxModePlain)
	return err
}

// DeleteFile removes fileNo from the selected application.
func (s *Session) DeleteFile(ctx context.Context, fileNo byte) error {
	_, err := s.dx(ctx, cmdDeleteFile, []byte{fileNo}, TxModePlain, RxModePlain)
	return err
}

// GetFileIDs returns the set of file numbers (0..63) present in the
// selected application as a bitmap.
func (s *Session) GetFileIDs(ctx context.Context) (uint64, error) {
	r, err := s.dx(ctx, cmdGetFileIDs, nil, TxModePlain, RxModePlain)
	if err != nil {
		return 0, err
	}
	var bitmap uint64
	for _, fn := range r[1:] {
		if fn > 63 {
			return 0, statusErr(cmdGetFileIDs, KindParameterError)
		}
		bitmap |= 1 << uint(fn)
	}
	return bitmap, nil
}

// GetFileSettings reads and parses a file's settings. The reply is
// variable length (8 to 18 bytes including status, per the union of
// original_source revisions and this spec's own table — see DESIGN.md);
// layout past the first four bytes depends on the type byte.
func (s *Session) GetFileSettings(ctx context.Context, fileNo byte) (*FileSettings, error) {
	r, err := s.dx(ctx, cmdGetFileSettings, []byte{fileNo}, TxModePlain, RxModePlain)
	if err != nil {
		return nil, err
	}
	if len(r) < 7 || len(r) > 18 {
		return nil, statusErr(cmdGetFileSettings, KindBadReplyLength)
	}
	body := r[1:]
	fs := &FileSettings{
		Comms:  CommsMode(body[0]),
		Access: uint16(body[1]) | uint16(body[2])<<8,
	}
	return parseFileSettingsRest(fs, body)
}

// parseFileSettingsRest dispatches on reply length, since the type byte
// itself isn't part of the wire reply (the caller already knows it from
// CreateFile) — the card's reply layout is inferred from length, matching
// df_get_file_settings's own approach.
func parseFileSettingsRest(fs *FileSettings, body []byte) (*FileSettings, error) {
	rest := body[3:]
	switch len(rest) {
	case 3: // standard/backup data file: 3-byte size
		fs.Type = FileStandardData
		fs.Size = uint32(rest[0]) | uint32(rest[1])<<8 | uint32(rest[2])<<16
	case 13: // value file: min(4) max(4) value(4) limited-credit(1)
		fs.Type = FileValue
		fs.Min = int32(le32(rest[0:4]))
		fs.Max = int32(le32(rest[4:8]))
		fs.LimitedCreditEnabled = rest[12] != 0
	case 9: // linear/cyclic record file: recordSize(3) maxRecords(3) currentRecords(3)
		fs.Type = FileLinearRecord
		fs.RecordSize = uint32(rest[0]) | uint32(rest[1])<<8 | uint32(rest[2])<<16
		fs.MaxRecords = uint32(rest[3]) | uint32(rest[4])<<8 | uint32(rest[5])<<16
		fs.CurrentRecords = uint32(rest[6]) | uint32(rest[7])<<8 | uint32(rest[8])<<16
	default:
		return nil, statusErr(cmdGetFileSettings, KindBadReplyLength)
	}
	return fs, nil
}

// ChangeFileSettings updates comms mode and access rights for fileNo.
// oldAccess carries the free-access convention (low nibble of the change-
// rights field equal to 0xE means change requires no authentication, and
// the command is sent plain rather than encrypted).
func (s *Session) ChangeFileSettings(ctx context.Context, fileNo byte, comms CommsMode, oldAccess, access uint16) error {
	payload := []byte{fileNo, byte(comms), byte(access), byte(access >> 8)}
	mode := TxModeEncrypted(2)
	if oldAccess&0x000F == 0x000E {
		mode = TxModePlain
	}
	_, err := s.dx(ctx, cmdChangeFileSettings, payload, mode, RxModePlain)
	return err
}
