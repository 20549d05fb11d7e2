// Package sse decodes the `data: <payload>` line framing used by streaming
// chat responses. The transport delivers bytes at arbitrary boundaries, so
// the decoder carries the trailing incomplete line between Feed calls.
package sse

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
)

const (
	dataPrefix   = "data:"
	doneSentinel = "[DONE]"
)

// EventType discriminates the variants of Event.
type EventType int

const (
	// EventDelta carries a fragment of assistant text.
	EventDelta EventType = iota
	// EventError carries an in-band error message from the backend.
	EventError
	// EventDone marks the end of the stream.
	EventDone
)

// Event is one decoded stream event.
type Event struct {
	Type    EventType
	Content string // set for EventDelta
	Err     string // set for EventError
}

// payload is the JSON body of a data line.
type payload struct {
	Content string  `json:"content"`
	Error   *string `json:"error"`
}

// Decoder turns raw chunk bytes into ordered events. One Decoder serves
// exactly one stream; it is not safe for concurrent use.
type Decoder struct {
	carry []byte
	done  bool
}

// NewDecoder returns a fresh decoder for a single stream.
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Done reports whether the [DONE] sentinel has been seen. Once done, Feed
// ignores all further input.
func (d *Decoder) Done() bool {
	return d.done
}

// Feed appends chunk to the carry-over buffer and decodes every complete
// line, returning the resulting events in order. The fragment after the last
// newline is retained for the next call. An empty chunk is a no-op.
func (d *Decoder) Feed(chunk []byte) []Event {
	if d.done || len(chunk) == 0 {
		return nil
	}

	d.carry = append(d.carry, chunk...)

	idx := bytes.LastIndexByte(d.carry, '\n')
	if idx < 0 {
		return nil
	}
	complete := d.carry[:idx]
	d.carry = append(d.carry[:0:0], d.carry[idx+1:]...)

	var events []Event
	for _, line := range strings.Split(string(complete), "\n") {
		events = d.decodeLine(events, line)
		if d.done {
			break
		}
	}
	return events
}

// decodeLine parses one complete line and appends any resulting events.
// Lines without the data prefix are keep-alives or comments and are dropped.
func (d *Decoder) decodeLine(events []Event, line string) []Event {
	line = strings.TrimSuffix(line, "\r")
	if !strings.HasPrefix(line, dataPrefix) {
		return events
	}
	data := strings.TrimLeft(strings.TrimPrefix(line, dataPrefix), " \t")

	if data == doneSentinel {
		d.done = true
		return append(events, Event{Type: EventDone})
	}

	var p payload
	if err := json.Unmarshal([]byte(data), &p); err != nil {
		// Malformed payloads are skipped rather than surfaced; the stream
		// stays usable for subsequent lines.
		slog.Debug("skipping undecodable stream line", "error", err)
		return events
	}

	if p.Content != "" {
		events = append(events, Event{Type: EventDelta, Content: p.Content})
	}
	if p.Error != nil {
		events = append(events, Event{Type: EventError, Err: *p.Error})
	}
	return events
}
