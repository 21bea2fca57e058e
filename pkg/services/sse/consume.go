package sse

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/liut/agrochat/pkg/models/aigc"
)

// Handler receives progress of a stream, an error returned by a callback stops the reading
type Handler struct {
	// OnDelta gets the new piece and the whole text so far
	OnDelta func(delta, text string) error
	// OnMetadata gets references attached to the answer
	OnMetadata func(md aigc.Metadata) error
}

// StreamError keeps the text received before the failure
type StreamError struct {
	Partial string
	Err     error
}

func (e *StreamError) Error() string {
	return fmt.Sprintf("stream broken after %d bytes: %s", len(e.Partial), e.Err)
}

func (e *StreamError) Unwrap() error {
	return e.Err
}

// Consume reads all events of r and returns the accumulated answer.
// Reaching the end without a done event is a normal completion.
func Consume(r io.Reader, h Handler) (string, error) {
	var sb strings.Builder
	fail := func(err error) (string, error) {
		return sb.String(), &StreamError{Partial: sb.String(), Err: err}
	}
	dec := NewDecoder(r)
	for {
		ev, err := dec.Next()
		if errors.Is(err, io.EOF) {
			return sb.String(), nil
		}
		if err != nil {
			return fail(err)
		}

		switch ev.Type {
		case EventData:
			sb.WriteString(ev.Content)
			if h.OnDelta != nil {
				if err = h.OnDelta(ev.Content, sb.String()); err != nil {
					return fail(err)
				}
			}
		case EventMetadata:
			if h.OnMetadata != nil {
				if err = h.OnMetadata(ev.Metadata); err != nil {
					return fail(err)
				}
			}
		}
	}
}
