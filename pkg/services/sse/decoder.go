// Package sse reads the event stream of the agent backend.
//
// The backend sends blocks of "event: <type>" and "data: <json>" lines terminated by a blank line.
// Only the data, metadata and done events are understood.
package sse

import (
	"bufio"
	"io"
	"strings"

	"github.com/bytedance/sonic"

	"github.com/liut/agrochat/pkg/models/aigc"
)

// event types
const (
	EventData     = "data"
	EventMetadata = "metadata"
	EventDone     = "done"
)

const (
	prefixEvent = "event:"
	prefixData  = "data:"
	// payload starts after "data: ", the space is part of the prefix
	dataOffset = len(prefixData) + 1

	maxLineSize = 1024 * 1024
)

// Event is one decoded block
type Event struct {
	Type     string
	Content  string        // with EventData
	Metadata aigc.Metadata // with EventMetadata
}

// Decoder turns a line stream into events lazily
type Decoder struct {
	sc   *bufio.Scanner
	done bool

	eventType string
	buffer    []byte
}

// NewDecoder ...
func NewDecoder(r io.Reader) *Decoder {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	return &Decoder{sc: sc}
}

// Next returns the next event. It returns io.EOF when the stream ends or after a done event,
// a block left open at the end of the stream is dropped.
func (d *Decoder) Next() (Event, error) {
	if d.done {
		return Event{}, io.EOF
	}
	for d.sc.Scan() {
		line := d.sc.Text()
		if strings.TrimSpace(line) == "" {
			ev, ok := d.flush()
			if !ok {
				continue
			}
			if ev.Type == EventDone {
				d.done = true
			}
			return ev, nil
		}

		if strings.HasPrefix(line, prefixEvent) {
			d.eventType = strings.TrimSpace(line[len(prefixEvent):])
		} else if strings.HasPrefix(line, prefixData) {
			if len(line) > dataOffset {
				d.buffer = append(d.buffer, line[dataOffset:]...)
			}
		}
	}
	d.done = true
	if err := d.sc.Err(); err != nil {
		return Event{}, err
	}
	return Event{}, io.EOF
}

// flush decodes the pending block and resets state whatever the outcome
func (d *Decoder) flush() (ev Event, ok bool) {
	typ, buf := d.eventType, d.buffer
	d.eventType = ""
	d.buffer = nil
	if len(typ) == 0 || len(buf) == 0 {
		return
	}

	switch typ {
	case EventData:
		var payload struct {
			Content string `json:"content"`
		}
		if err := sonic.Unmarshal(buf, &payload); err != nil {
			logger().Infow("invalid json in sse block", "event", typ, "buffer", string(buf), "err", err)
			return
		}
		return Event{Type: typ, Content: payload.Content}, true
	case EventMetadata:
		var md aigc.Metadata
		if err := sonic.Unmarshal(buf, &md); err != nil {
			logger().Infow("invalid json in sse block", "event", typ, "buffer", string(buf), "err", err)
			return
		}
		return Event{Type: typ, Metadata: md}, true
	default:
		var v any
		if err := sonic.Unmarshal(buf, &v); err != nil {
			logger().Infow("invalid json in sse block", "event", typ, "buffer", string(buf), "err", err)
			return
		}
		if typ == EventDone {
			return Event{Type: typ}, true
		}
		logger().Debugw("skip unknown sse event", "event", typ)
	}
	return
}
