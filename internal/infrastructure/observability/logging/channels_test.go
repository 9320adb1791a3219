package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"
)

func TestChannelRecordsCarryChannelName(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewChanneledLogger(&LoggerConfig{Writer: &buf, JSONFormat: true, DefaultLevel: slog.LevelInfo})
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}

	logger.Gate().Info("decision", "gate", "email")

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("decode record: %v", err)
	}
	if record["channel"] != "gate" {
		t.Fatalf("channel = %v, want gate", record["channel"])
	}
	if record["gate"] != "email" {
		t.Fatalf("gate attr = %v", record["gate"])
	}
}

func TestSetChannelLevelSilencesChannel(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewChanneledLogger(&LoggerConfig{Writer: &buf, DefaultLevel: slog.LevelInfo})
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}
	if err := logger.SetChannelLevel(ChannelPopup, slog.LevelError); err != nil {
		t.Fatalf("set level: %v", err)
	}

	logger.Popup().Info("dropped")
	if buf.Len() != 0 {
		t.Fatalf("expected no output, got %q", buf.String())
	}
	if err := logger.SetChannelLevel(Channel("nope"), slog.LevelInfo); err == nil {
		t.Fatal("expected error for unknown channel")
	}
}

func TestMaskEmail(t *testing.T) {
	cases := map[string]string{
		"trader@example.com": "t****@example.com",
		"x@y.io":             "x****@y.io",
		"not-an-email":       "****",
		"@example.com":       "****",
	}
	for in, want := range cases {
		if got := MaskEmail(in); got != want {
			t.Errorf("MaskEmail(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestWithVisitorMasksID(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewChanneledLogger(&LoggerConfig{Writer: &buf, JSONFormat: true, DefaultLevel: slog.LevelInfo})
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}

	logger.WithVisitor(ChannelRealtime, "01J0ABCDEFGHJKMNPQRSTVWXYZ").Info("connected")

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("decode record: %v", err)
	}
	if record["channel"] != "realtime" {
		t.Fatalf("channel = %v, want realtime", record["channel"])
	}
	if record["visitorId"] != "01J0****WXYZ" {
		t.Fatalf("visitorId = %v", record["visitorId"])
	}
}
