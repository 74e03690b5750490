package docker

import (
	"strings"
	"testing"
)

func TestStreamMessageRender(t *testing.T) {
	cases := []struct {
		name string
		msg  streamMessage
		want string
	}{
		{"stream", streamMessage{Stream: "Step 1/4 : FROM python:3.9\n"}, "Step 1/4 : FROM python:3.9\n"},
		{"status with id", streamMessage{Status: "Pushing", ID: "abc123"}, "abc123 Pushing"},
		{"status with progress detail", streamMessage{Status: "Downloading", ProgressDetail: progressDetail{Current: 5, Total: 10}}, "Downloading 5/10"},
		{"aux image id", streamMessage{Aux: map[string]interface{}{"ID": "sha256:deadbeef"}}, "image id: sha256:deadbeef"},
		{"empty", streamMessage{}, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.msg.render(); got != tc.want {
				t.Fatalf("render() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestDrainMessagesSurfacesDaemonError(t *testing.T) {
	body := `{"stream":"Step 1/2 : FROM python:3.9\n"}
{"errorDetail":{"message":"executor failed running"},"error":"executor failed running"}`

	var lines []string
	err := drainMessages(strings.NewReader(body), func(s string) { lines = append(lines, s) })
	if err == nil {
		t.Fatalf("expected error from daemon message")
	}
	if !strings.Contains(err.Error(), "executor failed running") {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(lines) != 1 {
		t.Fatalf("expected one rendered line before failure, got %d", len(lines))
	}
}

func TestDrainMessagesCollectsOutput(t *testing.T) {
	body := `{"stream":"a\n"}
{"status":"Pushed","id":"layer1"}
{"aux":{"Digest":"sha256:cafe"}}`

	var got []string
	if err := drainMessages(strings.NewReader(body), func(s string) { got = append(got, s) }); err != nil {
		t.Fatalf("drainMessages: %v", err)
	}
	want := []string{"a\n", "layer1 Pushed", "digest: sha256:cafe"}
	if len(got) != len(want) {
		t.Fatalf("got %d lines, want %d: %v", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("line %d = %q, want %q", i, got[i], want[i])
		}
	}
}
