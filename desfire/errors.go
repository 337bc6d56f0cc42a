package desfire

import (
	"errors"
	"fmt"
)

// Kind enumerates the error taxonomy a command exchange can surface.
type Kind int

const (
	KindOK Kind = iota
	KindMore
	KindNoChange
	KindOutOfEEPROM
	KindIllegalCommand
	KindIntegrityError
	KindNoSuchFile
	KindLengthError
	KindCryptoError
	KindPermissionDenied
	KindParameterError
	KindAppNotFound
	KindAuthError
	KindBoundaryError
	KindCardIntegrity
	KindCommandAborted
	KindCardDisabled
	KindCountError
	KindDuplicateError
	KindEEPROMError
	KindFileNotFound
	KindFileIntegrity
	KindUnknownStatus
	KindCardGone
	KindReaderError
	KindTxNoSpace
	KindRxNoSpace
	KindBadReplyLength
	KindBadEncryptedLength
	KindRxCrcFail
	KindRxCmacFail
	KindAuthFailed
	KindNotAuthenticated
)

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "Unknown"
}

var kindNames = map[Kind]string{
	KindOK:                 "OK",
	KindMore:               "more frames follow",
	KindNoChange:           "no changes",
	KindOutOfEEPROM:        "out of EEPROM",
	KindIllegalCommand:     "illegal command",
	KindIntegrityError:     "integrity error",
	KindNoSuchFile:         "no such file",
	KindLengthError:        "length error",
	KindCryptoError:        "crypto error",
	KindPermissionDenied:   "permission denied",
	KindParameterError:     "parameter error",
	KindAppNotFound:        "application not found",
	KindAuthError:          "authentication error",
	KindBoundaryError:      "boundary error",
	KindCardIntegrity:      "card integrity error",
	KindCommandAborted:     "command aborted",
	KindCardDisabled:       "card disabled",
	KindCountError:         "count error",
	KindDuplicateError:     "duplicate error",
	KindEEPROMError:        "EEPROM error",
	KindFileNotFound:       "file not found",
	KindFileIntegrity:      "file integrity error",
	KindUnknownStatus:      "unknown status",
	KindCardGone:           "card gone",
	KindReaderError:        "reader error",
	KindTxNoSpace:          "transmit buffer too small",
	KindRxNoSpace:          "receive buffer too small",
	KindBadReplyLength:     "unexpected reply length",
	KindBadEncryptedLength: "bad encrypted reply length",
	KindRxCrcFail:          "CRC check failed",
	KindRxCmacFail:         "CMAC check failed",
	KindAuthFailed:         "authentication failed",
	KindNotAuthenticated:   "not authenticated",
}

// statusKind maps a DESFire status byte to a Kind, per desfireaes.c's
// df_err table.
var statusKind = map[byte]Kind{
	0x00: KindOK,
	0xAF: KindMore,
	0x0C: KindNoChange,
	0x0E: KindOutOfEEPROM,
	0x1C: KindIllegalCommand,
	0x1E: KindIntegrityError,
	0x40: KindNoSuchFile,
	0x7E: KindLengthError,
	0x97: KindCryptoError,
	0x9D: KindPermissionDenied,
	0x9E: KindParameterError,
	0xA0: KindAppNotFound,
	0xAE: KindAuthError,
	0xBE: KindBoundaryError,
	0xC1: KindCardIntegrity,
	0xCA: KindCommandAborted,
	0xCD: KindCardDisabled,
	0xCE: KindCountError,
	0xDE: KindDuplicateError,
	0xEE: KindEEPROMError,
	0xF0: KindFileNotFound,
	0xF1: KindFileIntegrity,
}

func kindForStatus(status byte) Kind {
	if k, ok := statusKind[status]; ok {
		return k
	}
	return KindUnknownStatus
}

// StatusError is the error type Session commands return for card status,
// transport and protocol failures.
type StatusError struct {
	Kind   Kind
	Cmd    byte
	Status byte // wire status byte, meaningful for card-origin kinds
}

func (e *StatusError) Error() string {
	if e.Cmd != 0 {
		return fmt.Sprintf("desfire: cmd %02X: %s (status %02X)", e.Cmd, e.Kind, e.Status)
	}
	return fmt.Sprintf("desfire: %s", e.Kind)
}

func (e *StatusError) Is(target error) bool {
	t, ok := target.(*StatusError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

func statusErr(cmd byte, kind Kind) *StatusError {
	return &StatusError{Kind: kind, Cmd: cmd}
}

func cardStatusErr(cmd, status byte) *StatusError {
	return &StatusError{Kind: kindForStatus(status), Cmd: cmd, Status: status}
}

// cardGoneErr builds the per-command form of ErrCardGone: same Kind, with
// cmd attached for the error message.
func cardGoneErr(cmd byte) *StatusError {
	return &StatusError{Kind: ErrCardGone.Kind, Cmd: cmd}
}

// IsAuthError reports whether err is (or wraps) an authentication failure,
// on the wire or locally detected.
func IsAuthError(err error) bool {
	var se *StatusError
	if !asStatusError(err, &se) {
		return false
	}
	return se.Kind == KindAuthError || se.Kind == KindAuthFailed
}

// IsCardGone reports whether err indicates the card left the field.
func IsCardGone(err error) bool {
	var se *StatusError
	if !asStatusError(err, &se) {
		return false
	}
	return se.Kind == KindCardGone
}

func asStatusError(err error, out **StatusError) bool {
	return errors.As(err, out)
}
