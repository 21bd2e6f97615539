package capture

import (
	"errors"
	"io"
	"os"

	"github.com/fxamacker/cbor/v2"
)

// Reader iterates over the events of a capture stream.
type Reader struct {
	r       io.Reader
	decoder *cbor.Decoder
	filter  Filter
}

// NewReader reads every event from r.
func NewReader(r io.Reader) *Reader {
	return NewFilteredReader(r, Filter{})
}

// NewFilteredReader reads the events of r that match filter.
func NewFilteredReader(r io.Reader, filter Filter) *Reader {
	return &Reader{r: r, decoder: newDecoder(r), filter: filter}
}

// Open reads the capture file at path.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	return NewReader(f), nil
}

// Next returns the next matching event, or io.EOF at the end of the stream.
// A stream cut off in the middle of an event yields io.ErrUnexpectedEOF.
func (r *Reader) Next() (Event, error) {
	for {
		var e Event
		if err := r.decoder.Decode(&e); err != nil {
			return Event{}, err
		}
		if r.filter.matches(e) {
			return e, nil
		}
	}
}

// All returns the remaining matching events.
func (r *Reader) All() ([]Event, error) {
	var events []Event
	for {
		e, err := r.Next()
		if errors.Is(err, io.EOF) {
			return events, nil
		}
		if err != nil {
			return events, err
		}
		events = append(events, e)
	}
}

// Close closes the underlying reader if it is an io.Closer.
func (r *Reader) Close() error {
	if c, ok := r.r.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
