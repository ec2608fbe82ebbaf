package app

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestArpaHandler(t *testing.T) {
	t.Run("formats records as tab-separated fields", func(t *testing.T) {
		var buf bytes.Buffer
		logger := slog.New(&arpaHandler{w: &buf, opID: "toast-a1b2c3d4"})

		logger.Info("cook completed", "process_id", 42, "toas", 2)

		line := strings.TrimRight(buf.String(), "\n")
		fields := strings.Split(line, "\t")
		if len(fields) != 6 {
			t.Fatalf("got %d fields in %q, want 6", len(fields), line)
		}
		if _, err := time.Parse("2006-01-02T15:04:05Z", fields[0]); err != nil {
			t.Errorf("timestamp %q does not parse: %v", fields[0], err)
		}
		if fields[1] != "INFO" {
			t.Errorf("level = %q, want INFO", fields[1])
		}
		if fields[2] != "toast-a1b2c3d4" {
			t.Errorf("opID = %q, want toast-a1b2c3d4", fields[2])
		}
		if fields[3] != "cook completed" {
			t.Errorf("message = %q", fields[3])
		}
		if fields[4] != "process_id=42" || fields[5] != "toas=2" {
			t.Errorf("attrs = %q %q", fields[4], fields[5])
		}
	})

	t.Run("WithAttrs carries pre-set attrs on every record", func(t *testing.T) {
		var buf bytes.Buffer
		logger := slog.New(&arpaHandler{w: &buf, opID: "op"}).With("pulsar", "0437")

		logger.Warn("fit failed")

		if !strings.Contains(buf.String(), "\tpulsar=0437") {
			t.Errorf("pre-set attr missing from %q", buf.String())
		}
	})

	t.Run("all levels are enabled", func(t *testing.T) {
		h := &arpaHandler{w: &bytes.Buffer{}, opID: "op"}
		if !h.Enabled(context.Background(), slog.LevelDebug) {
			t.Error("debug level should be enabled")
		}
	})
}
