package desfire

import "context"

func txModeForComms(comms CommsMode) TxMode {
	switch comms {
	case CommsCMAC:
		return TxModeAppendCMAC
	case CommsEncrypted:
		return TxModeEncrypted(8) // cmd + fileNo + offset(3) + length(3)
	default:
		return TxModePlain
	}
}

// txModeForValueComms maps the comms mode of a Credit/LimitedCredit/Debit
// call to a tx mode. Unlike WriteData, these commands are sent only plain
// or with a CMAC; CommsEncrypted is rejected as a parameter error.
func txModeForValueComms(cmd byte, comms CommsMode) (TxMode, error) {
	switch comms {
	case CommsCMAC:
		return TxModeAppendCMAC, nil
	case CommsPlain:
		return TxModePlain, nil
	default:
		return TxMode{}, statusErr(cmd, KindParameterError)
	}
}

// WriteData writes data at offset into a standard or backup data file.
func (s *Session) WriteData(ctx context.Context, fileNo byte, comms CommsMode, offset uint32, data []byte) error {
	return s.writeToFile(ctx, cmdWriteData, fileNo, comms, offset, data)
}

// WriteRecord appends a record to a linear or cyclic record file. offset
// is the byte offset within the record being written (usually 0).
func (s *Session) WriteRecord(ctx context.Context, fileNo byte, comms CommsMode, offset uint32, data []byte) error {
	return s.writeToFile(ctx, cmdWriteRecord, fileNo, comms, offset, data)
}

func (s *Session) writeToFile(ctx context.Context, cmd byte, fileNo byte, comms CommsMode, offset uint32, data []byte) error {
	length := uint32(len(data))
	payload := make([]byte, 0, 7+len(data))
	payload = append(payload, fileNo,
		byte(offset), byte(offset>>8), byte(offset>>16),
		byte(length), byte(length>>8), byte(length>>16))
	payload = append(payload, data...)
	_, err := s.dx(ctx, cmd, payload, txModeForComms(comms), RxModePlain)
	return err
}

// ReadData reads length bytes at offset from a standard or backup data
// file.
func (s *Session) ReadData(ctx context.Context, fileNo byte, comms CommsMode, offset, length uint32) ([]byte, error) {
	payload := []byte{fileNo,
		byte(offset), byte(offset >> 8), byte(offset >> 16),
		byte(length), byte(length >> 8), byte(length >> 16)}
	rx := RxModePlain
	if comms == CommsEncrypted {
		rx = RxModeEncrypted(byte(length))
	}
	r, err := s.dx(ctx, cmdReadData, payload, TxModePlain, rx)
	if err != nil {
		return nil, err
	}
	return r[1:], nil
}

// ReadRecords reads count records of rsize bytes each, starting at record
// (0 = most recent for cyclic files).
func (s *Session) ReadRecords(ctx context.Context, fileNo byte, comms CommsMode, record, count, rsize uint32) ([]byte, error) {
	payload := []byte{fileNo,
		byte(record), byte(record >> 8), byte(record >> 16),
		byte(count), byte(count >> 8), byte(count >> 16)}
	total := count * rsize
	rx := RxModePlain
	if comms == CommsEncrypted {
		rx = RxModeEncrypted(byte(total))
	}
	r, err := s.dx(ctx, cmdReadRecords, payload, TxModePlain, rx)
	if err != nil {
		return nil, err
	}
	return r[1:], nil
}

// GetValue reads the current value of a value file.
func (s *Session) GetValue(ctx context.Context, fileNo byte, comms CommsMode) (int32, error) {
	rx := RxModePlain
	if comms == CommsEncrypted {
		rx = RxModeEncrypted(4)
	}
	r, err := s.dx(ctx, cmdGetValue, []byte{fileNo}, TxModePlain, rx)
	if err != nil {
		return 0, err
	}
	if len(r) != 5 {
		return 0, statusErr(cmdGetValue, KindBadReplyLength)
	}
	return int32(le32(r[1:5])), nil
}

func valuePayload(fileNo byte, delta int32) []byte {
	u := uint32(delta)
	return []byte{fileNo, byte(u), byte(u >> 8), byte(u >> 16), byte(u >> 24)}
}

// Credit increases a value file's balance by delta. comms must be
// CommsPlain or CommsCMAC; a value file has no encrypted wire form for
// this command.
func (s *Session) Credit(ctx context.Context, fileNo byte, comms CommsMode, delta int32) error {
	tx, err := txModeForValueComms(cmdCredit, comms)
	if err != nil {
		return err
	}
	_, err = s.dx(ctx, cmdCredit, valuePayload(fileNo, delta), tx, RxModePlain)
	return err
}

// LimitedCredit increases a value file's balance by delta, permitted even
// without having first authenticated as the file's credit key holder when
// the file's limited-credit flag is enabled. comms must be CommsPlain or
// CommsCMAC.
func (s *Session) LimitedCredit(ctx context.Context, fileNo byte, comms CommsMode, delta int32) error {
	tx, err := txModeForValueComms(cmdLimitedCredit, comms)
	if err != nil {
		return err
	}
	_, err = s.dx(ctx, cmdLimitedCredit, valuePayload(fileNo, delta), tx, RxModePlain)
	return err
}

// Debit decreases a value file's balance by delta. comms must be
// CommsPlain or CommsCMAC.
func (s *Session) Debit(ctx context.Context, fileNo byte, comms CommsMode, delta int32) error {
	tx, err := txModeForValueComms(cmdDebit, comms)
	if err != nil {
		return err
	}
	_, err = s.dx(ctx, cmdDebit, valuePayload(fileNo, delta), tx, RxModePlain)
	return err
}
