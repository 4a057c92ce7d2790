package rdm

import "testing"

func TestSimpleCodec_RoundTrip(t *testing.T) {
	codec := SimpleCodec{}
	cmd := &Command{
		SourceUID:      NewUID(0x4850, 1),
		DestinationUID: NewUID(0x4850, 2),
		TransactionNum: 42,
		CommandClass:   GetCommand,
		SubDevice:      0,
		PID:            PIDDeviceInfo,
		Data:           []byte{1, 2, 3, 4},
	}

	packed, err := codec.Pack(cmd)
	if err != nil {
		t.Fatalf("Pack: %v", err)
	}

	got, err := codec.Inflate(packed)
	if err != nil {
		t.Fatalf("Inflate: %v", err)
	}

	if got.SourceUID != cmd.SourceUID || got.DestinationUID != cmd.DestinationUID {
		t.Errorf("uid mismatch: got %+v", got)
	}
	if got.TransactionNum != cmd.TransactionNum || got.CommandClass != cmd.CommandClass {
		t.Errorf("header mismatch: got %+v", got)
	}
	if got.PID != cmd.PID || got.SubDevice != cmd.SubDevice {
		t.Errorf("pid/subdevice mismatch: got %+v", got)
	}
	if string(got.Data) != string(cmd.Data) {
		t.Errorf("data mismatch: got %v want %v", got.Data, cmd.Data)
	}
}

func TestSimpleCodec_InflateShort(t *testing.T) {
	codec := SimpleCodec{}
	if _, err := codec.Inflate([]byte{1, 2, 3}); err == nil {
		t.Error("expected error inflating short buffer, got nil")
	}
}
