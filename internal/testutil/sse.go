// Package testutil provides test doubles and protocol helpers shared by
// package tests. Not imported by production code.
package testutil

import (
	"bufio"
	"encoding/json"
	"strings"
	"testing"
)

// SSEEvent is one parsed wire event. Type is the "event" discriminator
// pulled from the JSON payload; Data is the raw payload for further
// decoding with DecodeEvent.
type SSEEvent struct {
	Type string
	Data string
}

// ParseSSEEvents parses a data-only SSE stream into structured events.
//
// The wire format is one "data: {json}" line per event, blank-line
// terminated, with the event type carried inside the payload. Comment
// lines starting with ":" are ignored.
//
// Example:
//
//	events := testutil.ParseSSEEvents(t, rec.Body.String())
//	require.Equal(t, "generation_start", events[1].Type)
func ParseSSEEvents(t *testing.T, body string) []SSEEvent {
	t.Helper()

	var events []SSEEvent
	scanner := bufio.NewScanner(strings.NewReader(body))

	var dataLines []string
	lineNum := 0

	flush := func() {
		if len(dataLines) == 0 {
			return
		}
		data := strings.Join(dataLines, "\n")
		dataLines = nil

		var envelope struct {
			Event string `json:"event"`
		}
		if err := json.Unmarshal([]byte(data), &envelope); err != nil {
			t.Fatalf("SSE payload is not valid JSON: %v (payload %q)", err, data)
		}
		if envelope.Event == "" {
			t.Fatalf("SSE payload missing event discriminator: %q", data)
		}
		events = append(events, SSEEvent{Type: envelope.Event, Data: data})
	}

	for scanner.Scan() {
		lineNum++
		line := scanner.Text()

		switch {
		case strings.HasPrefix(line, "data: "):
			dataLines = append(dataLines, strings.TrimPrefix(line, "data: "))

		case line == "":
			flush()

		case strings.HasPrefix(line, ":"):
			// comment, ignore

		default:
			t.Fatalf("SSE parse error at line %d: unexpected line %q", lineNum, line)
		}
	}
	if err := scanner.Err(); err != nil {
		t.Fatalf("SSE scan error: %v", err)
	}
	if len(dataLines) > 0 {
		t.Fatalf("SSE stream ended mid-event (missing blank line after %q)", dataLines[0])
	}

	return events
}

// DecodeEvent unmarshals an event payload into out.
func DecodeEvent(t *testing.T, ev SSEEvent, out any) {
	t.Helper()
	if err := json.Unmarshal([]byte(ev.Data), out); err != nil {
		t.Fatalf("decoding %s event: %v (payload %q)", ev.Type, err, ev.Data)
	}
}

// FindEvent returns the first event of the given type, or nil.
func FindEvent(events []SSEEvent, eventType string) *SSEEvent {
	for i := range events {
		if events[i].Type == eventType {
			return &events[i]
		}
	}
	return nil
}

// FindAllEvents returns all events of the given type.
func FindAllEvents(events []SSEEvent, eventType string) []SSEEvent {
	var found []SSEEvent
	for _, e := range events {
		if e.Type == eventType {
			found = append(found, e)
		}
	}
	return found
}

// EventTypes returns the type sequence of the parsed events, for trace
// assertions.
func EventTypes(events []SSEEvent) []string {
	types := make([]string, len(events))
	for i, e := range events {
		types[i] = e.Type
	}
	return types
}
