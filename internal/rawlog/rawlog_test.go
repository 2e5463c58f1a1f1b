package rawlog

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/dmitriimaksimovdevelop/aperf/internal/model"
)

func TestWriteReadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cpu.bin")
	w, err := Create(path)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	want := []model.RawRecord{
		{Timestamp: t0, Payload: []byte("cpu  100 0 200 800")},
		{Timestamp: t0.Add(time.Second), Payload: []byte("cpu  120 0 220 900")},
	}
	for _, rec := range want {
		if err := w.Append(rec); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	got, err := ReadAll(path)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(got) != len(want) {
		t.Fatalf("ReadAll returned %d records, want %d", len(got), len(want))
	}
	for i := range want {
		if !got[i].Timestamp.Equal(want[i].Timestamp) {
			t.Errorf("record %d timestamp = %v, want %v", i, got[i].Timestamp, want[i].Timestamp)
		}
		if string(got[i].Payload) != string(want[i].Payload) {
			t.Errorf("record %d payload = %q, want %q", i, got[i].Payload, want[i].Payload)
		}
	}
}

func TestReadAllEmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.bin")
	w, err := Create(path)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	got, err := ReadAll(path)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("ReadAll on empty file returned %d records, want 0", len(got))
	}
}

func TestReadAllTruncatedTail(t *testing.T) {
	path := filepath.Join(t.TempDir(), "truncated.bin")
	w, err := Create(path)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := w.Append(model.RawRecord{Timestamp: time.Now(), Payload: []byte("complete")}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := w.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	// Simulate a crash mid-write: append a header claiming more
	// payload than actually follows.
	if _, err := w.w.Write([]byte{0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 100}); err != nil {
		t.Fatalf("write partial header: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	got, err := ReadAll(path)
	if err != ErrTruncated {
		t.Fatalf("ReadAll err = %v, want ErrTruncated", err)
	}
	if len(got) != 1 || string(got[0].Payload) != "complete" {
		t.Errorf("ReadAll records = %+v, want one record {complete}", got)
	}
}
