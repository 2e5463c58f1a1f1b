// Package rawlog implements the self-describing binary record log that
// the record phase appends to and the report phase replays: a
// concatenation of length-prefixed envelopes, one per raw sample.
package rawlog

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dmitriimaksimovdevelop/aperf/internal/model"
)

// ErrTruncated is returned by Read when the log ends mid-record. The
// records decoded up to that point are still returned to the caller;
// a truncated tail does not invalidate the earlier records.
var ErrTruncated = errors.New("rawlog: truncated record at end of file")

// envelope layout: 8 bytes timestamp (unix nanoseconds, big endian),
// 4 bytes payload length (big endian), then the payload itself.
const headerSize = 8 + 4

// Writer appends raw records to a single source's log file.
type Writer struct {
	f *os.File
	w *bufio.Writer
}

// Create opens path for appending, truncating it if it exists. Each
// record run starts a fresh file per source per run directory.
func Create(path string) (*Writer, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("rawlog: create %s: %w", path, err)
	}
	return &Writer{f: f, w: bufio.NewWriter(f)}, nil
}

// Append writes one record. It does not flush; callers should Close
// (or Flush) after the collection window to ensure durability.
func (w *Writer) Append(rec model.RawRecord) error {
	var header [headerSize]byte
	binary.BigEndian.PutUint64(header[0:8], uint64(rec.Timestamp.UnixNano()))
	binary.BigEndian.PutUint32(header[8:12], uint32(len(rec.Payload)))
	if _, err := w.w.Write(header[:]); err != nil {
		return fmt.Errorf("rawlog: write header: %w", err)
	}
	if _, err := w.w.Write(rec.Payload); err != nil {
		return fmt.Errorf("rawlog: write payload: %w", err)
	}
	return nil
}

// Flush forces buffered records to disk without closing the file.
func (w *Writer) Flush() error {
	return w.w.Flush()
}

// Close flushes and closes the underlying file.
func (w *Writer) Close() error {
	if err := w.w.Flush(); err != nil {
		w.f.Close()
		return fmt.Errorf("rawlog: flush: %w", err)
	}
	return w.f.Close()
}

// ReadAll replays every complete record in path. If the file ends
// mid-record, the records decoded so far are returned alongside
// ErrTruncated.
func ReadAll(path string) ([]model.RawRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("rawlog: open %s: %w", path, err)
	}
	defer f.Close()

	r := bufio.NewReader(f)
	var records []model.RawRecord
	for {
		var header [headerSize]byte
		n, err := io.ReadFull(r, header[:])
		if err == io.EOF && n == 0 {
			return records, nil
		}
		if err != nil {
			return records, ErrTruncated
		}
		tsNano := binary.BigEndian.Uint64(header[0:8])
		length := binary.BigEndian.Uint32(header[8:12])
		payload := make([]byte, length)
		if _, err := io.ReadFull(r, payload); err != nil {
			return records, ErrTruncated
		}
		records = append(records, model.RawRecord{
			Timestamp: time.Unix(0, int64(tsNano)).UTC(),
			Payload:   payload,
		})
	}
}
