package engine

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestDecodeStream(t *testing.T) {
	input := `{"stream":"Step 1/3 : FROM ubuntu:22.04\n"}
{"status":"Pulling from library/ubuntu"}
{"stream":" ---> abc123\n"}
`

	var events []Event
	decodeStream(strings.NewReader(input), func(ev Event) bool {
		events = append(events, ev)
		return true
	})

	want := []Event{
		progress("Step 1/3 : FROM ubuntu:22.04"),
		progress("Pulling from library/ubuntu"),
		progress(" ---> abc123"),
	}
	if diff := cmp.Diff(want, events); diff != "" {
		t.Fatalf("events mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodeStreamError(t *testing.T) {
	input := `{"stream":"Step 2/3 : RUN make\n"}
{"error":"The command '/bin/sh -c make' returned a non-zero code: 2"}
{"stream":"never decoded\n"}
`

	var events []Event
	decodeStream(strings.NewReader(input), func(ev Event) bool {
		events = append(events, ev)
		return true
	})

	if len(events) != 2 {
		t.Fatalf("events = %v, want decoding to stop at the error", events)
	}
	if events[1].Kind != Error || !strings.Contains(events[1].Line, "non-zero code: 2") {
		t.Fatalf("terminal event = %v", events[1])
	}
}

func TestDecodeStreamMalformed(t *testing.T) {
	var events []Event
	decodeStream(strings.NewReader("{not json"), func(ev Event) bool {
		events = append(events, ev)
		return true
	})

	if len(events) != 1 || events[0].Kind != Error {
		t.Fatalf("events = %v, want a single failure", events)
	}
}

func TestDecodeStreamStopsWithConsumer(t *testing.T) {
	input := `{"stream":"one\ntwo\nthree\n"}`

	var events []Event
	decodeStream(strings.NewReader(input), func(ev Event) bool {
		events = append(events, ev)
		return false
	})

	if len(events) != 1 {
		t.Fatalf("events = %v, want decoding to stop with the consumer", events)
	}
}

func TestSplitLines(t *testing.T) {
	tests := []struct {
		text string
		want []string
	}{
		{"one\ntwo\n", []string{"one", "two"}},
		{"\n \nline\n", []string{"line"}},
		{"", nil},
	}

	for _, tt := range tests {
		if diff := cmp.Diff(tt.want, splitLines(tt.text)); diff != "" {
			t.Errorf("splitLines(%q) mismatch (-want +got):\n%s", tt.text, diff)
		}
	}
}

func TestAnonymousAuth(t *testing.T) {
	decoded, err := base64.URLEncoding.DecodeString(anonymousAuth())
	if err != nil {
		t.Fatal(err)
	}
	if string(decoded) != "{}" {
		t.Fatalf("auth = %q, want empty credentials", decoded)
	}
}
