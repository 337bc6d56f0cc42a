package desfire_test

import (
	"context"
	"testing"

	"github.com/barnettlynn/desfire/desfire"
)

func authedMaster(t *testing.T, key []byte) *desfire.Session {
	t.Helper()
	card := newTestCard(key)
	s := desfire.NewSession(card)
	if err := s.AuthenticateAES(context.Background(), 0, key); err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	return s
}

func TestGetVersionMergesThreeParts(t *testing.T) {
	s := authedMaster(t, make([]byte, 16))
	v, err := s.GetVersion(context.Background())
	if err != nil {
		t.Fatalf("GetVersion: %v", err)
	}
	if v.HWVendor != 0x04 {
		t.Fatalf("unexpected HWVendor %02X", v.HWVendor)
	}
	if s.LastUID() == nil {
		t.Fatal("GetVersion should cache the UID")
	}
}

func TestCreateAndSelectApplication(t *testing.T) {
	ctx := context.Background()
	s := authedMaster(t, make([]byte, 16))
	aid := [3]byte{0x01, 0x02, 0x03}
	if err := s.CreateApplication(ctx, aid, 0x0F, 1); err != nil {
		t.Fatalf("CreateApplication: %v", err)
	}

	ids, err := s.GetApplicationIDs(ctx)
	if err != nil {
		t.Fatalf("GetApplicationIDs: %v", err)
	}
	found := false
	for _, got := range ids {
		if got == aid {
			found = true
		}
	}
	if !found {
		t.Fatalf("created aid %v not in %v", aid, ids)
	}

	if err := s.SelectApplication(ctx, aid); err != nil {
		t.Fatalf("SelectApplication: %v", err)
	}
	if s.AID() != aid {
		t.Fatalf("AID() = %v, want %v", s.AID(), aid)
	}
}

func TestCreateFileWriteReadPlain(t *testing.T) {
	ctx := context.Background()
	masterKey := make([]byte, 16)
	s := authedMaster(t, masterKey)
	aid := [3]byte{0xAA, 0xBB, 0xCC}
	if err := s.CreateApplication(ctx, aid, 0x0F, 1); err != nil {
		t.Fatalf("CreateApplication: %v", err)
	}
	if err := s.SelectApplication(ctx, aid); err != nil {
		t.Fatalf("SelectApplication: %v", err)
	}
	if err := s.AuthenticateAES(ctx, 0, masterKey); err != nil {
		t.Fatalf("authenticate in app: %v", err)
	}

	if err := s.CreateFile(ctx, 0, desfire.FileStandardData, desfire.CommsPlain, 0xEEEE, 32, 0, 0, 0, 0, 0); err != nil {
		t.Fatalf("CreateFile: %v", err)
	}

	payload := []byte("hello desfire")
	if err := s.WriteData(ctx, 0, desfire.CommsPlain, 0, payload); err != nil {
		t.Fatalf("WriteData: %v", err)
	}
	got, err := s.ReadData(ctx, 0, desfire.CommsPlain, 0, uint32(len(payload)))
	if err != nil {
		t.Fatalf("ReadData: %v", err)
	}
	if string(got) != string(payload) {
		t.Fatalf("ReadData = %q, want %q", got, payload)
	}
}

func TestCreateFileWriteReadCMAC(t *testing.T) {
	ctx := context.Background()
	masterKey := make([]byte, 16)
	s := authedMaster(t, masterKey)
	aid := [3]byte{0x01, 0x01, 0x01}
	if err := s.CreateApplication(ctx, aid, 0x0F, 1); err != nil {
		t.Fatalf("CreateApplication: %v", err)
	}
	if err := s.SelectApplication(ctx, aid); err != nil {
		t.Fatalf("SelectApplication: %v", err)
	}
	if err := s.AuthenticateAES(ctx, 0, masterKey); err != nil {
		t.Fatalf("authenticate in app: %v", err)
	}
	if err := s.CreateFile(ctx, 1, desfire.FileStandardData, desfire.CommsCMAC, 0xEEEE, 16, 0, 0, 0, 0, 0); err != nil {
		t.Fatalf("CreateFile: %v", err)
	}
	payload := []byte("0123456789ABCDEF")
	if err := s.WriteData(ctx, 1, desfire.CommsCMAC, 0, payload); err != nil {
		t.Fatalf("WriteData (cmac): %v", err)
	}
	got, err := s.ReadData(ctx, 1, desfire.CommsCMAC, 0, uint32(len(payload)))
	if err != nil {
		t.Fatalf("ReadData (cmac): %v", err)
	}
	if string(got) != string(payload) {
		t.Fatalf("ReadData (cmac) = %q, want %q", got, payload)
	}
}

func TestCreateFileWriteReadEncrypted(t *testing.T) {
	ctx := context.Background()
	masterKey := make([]byte, 16)
	s := authedMaster(t, masterKey)
	aid := [3]byte{0x02, 0x02, 0x02}
	if err := s.CreateApplication(ctx, aid, 0x0F, 1); err != nil {
		t.Fatalf("CreateApplication: %v", err)
	}
	if err := s.SelectApplication(ctx, aid); err != nil {
		t.Fatalf("SelectApplication: %v", err)
	}
	if err := s.AuthenticateAES(ctx, 0, masterKey); err != nil {
		t.Fatalf("authenticate in app: %v", err)
	}
	if err := s.CreateFile(ctx, 2, desfire.FileStandardData, desfire.CommsEncrypted, 0xEEEE, 16, 0, 0, 0, 0, 0); err != nil {
		t.Fatalf("CreateFile: %v", err)
	}
	payload := []byte("secretpayload!!!")
	if err := s.WriteData(ctx, 2, desfire.CommsEncrypted, 0, payload); err != nil {
		t.Fatalf("WriteData (encrypted): %v", err)
	}
	got, err := s.ReadData(ctx, 2, desfire.CommsEncrypted, 0, uint32(len(payload)))
	if err != nil {
		t.Fatalf("ReadData (encrypted): %v", err)
	}
	if string(got) != string(payload) {
		t.Fatalf("ReadData (encrypted) = %q, want %q", got, payload)
	}
}

func TestValueFileCreditDebit(t *testing.T) {
	ctx := context.Background()
	masterKey := make([]byte, 16)
	s := authedMaster(t, masterKey)
	aid := [3]byte{0x03, 0x03, 0x03}
	if err := s.CreateApplication(ctx, aid, 0x0F, 1); err != nil {
		t.Fatalf("CreateApplication: %v", err)
	}
	if err := s.SelectApplication(ctx, aid); err != nil {
		t.Fatalf("SelectApplication: %v", err)
	}
	if err := s.AuthenticateAES(ctx, 0, masterKey); err != nil {
		t.Fatalf("authenticate in app: %v", err)
	}
	if err := s.CreateFile(ctx, 3, desfire.FileValue, desfire.CommsPlain, 0xEEEE, 0, 0, 1000, 100, 0, 0); err != nil {
		t.Fatalf("CreateFile (value): %v", err)
	}
	if err := s.Credit(ctx, 3, desfire.CommsPlain, 50); err != nil {
		t.Fatalf("Credit: %v", err)
	}
	if err := s.Debit(ctx, 3, desfire.CommsPlain, 20); err != nil {
		t.Fatalf("Debit: %v", err)
	}
	v, err := s.GetValue(ctx, 3, desfire.CommsPlain)
	if err != nil {
		t.Fatalf("GetValue: %v", err)
	}
	if v != 130 {
		t.Fatalf("value = %d, want 130", v)
	}
}

func TestValueFileCommandsRejectEncryptedComms(t *testing.T) {
	ctx := context.Background()
	masterKey := make([]byte, 16)
	s := authedMaster(t, masterKey)
	aid := [3]byte{0x04, 0x04, 0x04}
	if err := s.CreateApplication(ctx, aid, 0x0F, 1); err != nil {
		t.Fatalf("CreateApplication: %v", err)
	}
	if err := s.SelectApplication(ctx, aid); err != nil {
		t.Fatalf("SelectApplication: %v", err)
	}
	if err := s.AuthenticateAES(ctx, 0, masterKey); err != nil {
		t.Fatalf("authenticate in app: %v", err)
	}
	if err := s.CreateFile(ctx, 3, desfire.FileValue, desfire.CommsPlain, 0xEEEE, 0, 0, 1000, 100, 0, 0); err != nil {
		t.Fatalf("CreateFile (value): %v", err)
	}

	if err := s.Credit(ctx, 3, desfire.CommsEncrypted, 50); err == nil {
		t.Fatal("Credit with CommsEncrypted must be rejected")
	}
	if err := s.LimitedCredit(ctx, 3, desfire.CommsEncrypted, 50); err == nil {
		t.Fatal("LimitedCredit with CommsEncrypted must be rejected")
	}
	if err := s.Debit(ctx, 3, desfire.CommsEncrypted, 20); err == nil {
		t.Fatal("Debit with CommsEncrypted must be rejected")
	}
}

func TestChangeKeySameSlotInvalidatesSession(t *testing.T) {
	ctx := context.Background()
	oldKey := make([]byte, 16)
	s := authedMaster(t, oldKey)
	newKey := make([]byte, 16)
	newKey[0] = 0x42
	if err := s.ChangeKey(ctx, 0, 1, newKey, nil); err != nil {
		t.Fatalf("ChangeKey: %v", err)
	}
	if s.IsAuthenticated() {
		t.Fatal("changing the authenticated key's own slot must deauthenticate")
	}
	if err := s.AuthenticateAES(ctx, 0, newKey); err != nil {
		t.Fatalf("authenticate with new key: %v", err)
	}
}

func TestFormatWithSuppliedKey(t *testing.T) {
	ctx := context.Background()
	masterKey := make([]byte, 16)
	masterKey[0] = 0x77
	card := newTestCard(masterKey)
	s := desfire.NewSession(card)

	if err := s.Format(ctx, masterKey, 1); err != nil {
		t.Fatalf("Format: %v", err)
	}
	if err := s.AuthenticateAES(ctx, 0, masterKey); err != nil {
		t.Fatalf("authenticate after format: %v", err)
	}
}

func TestGetFreeMemoryAndUID(t *testing.T) {
	ctx := context.Background()
	s := authedMaster(t, make([]byte, 16))
	free, err := s.GetFreeMemory(ctx)
	if err != nil {
		t.Fatalf("GetFreeMemory: %v", err)
	}
	if free != 1<<20 {
		t.Fatalf("GetFreeMemory = %d, want %d", free, 1<<20)
	}
	uid, err := s.GetUID(ctx)
	if err != nil {
		t.Fatalf("GetUID: %v", err)
	}
	if uid != [7]byte{0x04, 0x11, 0x22, 0x33, 0x44, 0x55, 0x66} {
		t.Fatalf("unexpected uid %v", uid)
	}
}
