package capture

import (
	"io"
	"net"
	"os"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"

	"github.com/chabad360/osckit/osc"
)

// Writer appends events to a stream. It is safe for concurrent use, which the
// server needs since inbound and outbound datagrams are tapped from different
// goroutines.
type Writer struct {
	session string

	mu      sync.Mutex
	w       io.Writer
	encoder *cbor.Encoder
	count   int
	err     error
	closed  bool
}

var _ osc.Tap = (*Writer)(nil)

// NewWriter returns a Writer with a fresh session ID that encodes to w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{
		session: uuid.NewString(),
		w:       w,
		encoder: newEncoder(w),
	}
}

// Create opens path for appending, creating it with mode 0644 if needed.
func Create(path string) (*Writer, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}
	return NewWriter(f), nil
}

// Session returns the session ID stamped on every event.
func (w *Writer) Session() string { return w.session }

// Datagram records one datagram. It implements osc.Tap.
func (w *Writer) Datagram(dir osc.Direction, peer net.Addr, at time.Time, data []byte, err error) {
	e := Event{
		Timestamp: at,
		Session:   w.session,
		Direction: dir,
		Data:      data,
	}
	if peer != nil {
		e.Peer = peer.String()
	}
	if err != nil {
		e.Error = err.Error()
	}
	w.Write(e)
}

// Write appends e. The first encoding error is kept and returned by Err and
// Close; later events are dropped.
func (w *Writer) Write(e Event) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed || w.err != nil {
		return
	}
	if err := w.encoder.Encode(e); err != nil {
		w.err = err
		return
	}
	w.count++
}

// Count returns how many events were written.
func (w *Writer) Count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.count
}

// Err returns the first write error.
func (w *Writer) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}

// Close closes the underlying writer if it is an io.Closer. Later events are
// ignored. Calling Close twice is not an error.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true

	var err error
	if c, ok := w.w.(io.Closer); ok {
		err = c.Close()
	}
	if w.err != nil {
		return w.err
	}
	return err
}
