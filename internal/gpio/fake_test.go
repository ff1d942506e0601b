package gpio

import (
	"errors"
	"testing"
)

func TestFakeReaderRead(t *testing.T) {
	f := NewFakeReader(true, false, true)

	for i, want := range []bool{true, false, true} {
		got, err := f.Read()
		if err != nil {
			t.Fatalf("sample %d: unexpected error: %v", i, err)
		}
		if got != want {
			t.Errorf("sample %d: expected %v, got %v", i, want, got)
		}
	}

	// Fourth read should repeat last sample
	got, err := f.Read()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got {
		t.Error("sample 3 (repeat): expected true")
	}
}

func TestFakeReaderNoSamples(t *testing.T) {
	f := NewFakeReader()

	_, err := f.Read()
	if err == nil {
		t.Error("expected error with no samples")
	}
}

func TestFakeReaderError(t *testing.T) {
	f := NewFakeReader(true)
	f.ReadError = errors.New("simulated error")

	_, err := f.Read()
	if err == nil {
		t.Fatal("expected error to be returned")
	}
	if err.Error() != "simulated error" {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestFakeReaderClose(t *testing.T) {
	f := NewFakeReader(true, false)

	f.Read()
	if err := f.Close(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if !f.Closed {
		t.Error("should be closed after Close()")
	}
}

func TestFakeWriter(t *testing.T) {
	f := &FakeWriter{}
	if f.Last() {
		t.Error("empty writer should report false")
	}

	f.Set(true)
	f.Set(false)
	f.Set(true)
	if len(f.Values) != 3 || !f.Last() {
		t.Errorf("unexpected values: %v", f.Values)
	}

	f.SetError = errors.New("line busy")
	if err := f.Set(false); err == nil {
		t.Error("expected SetError to be returned")
	}
	if len(f.Values) != 3 {
		t.Error("failed Set must not be recorded")
	}
}
