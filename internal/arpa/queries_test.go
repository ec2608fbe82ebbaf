package arpa_test

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"arpa-go/internal/arpa"
)

func TestFormatMJD(t *testing.T) {
	tests := []struct {
		mjdInt  int
		mjdFrac float64
		want    string
	}{
		{58000, 0.5, "58000.5000000000000"},
		{58000, 0.1234567890123, "58000.1234567890123"},
		{51000, 0, "51000.0000000000000"},
		// A fraction that rounds up at thirteen digits carries into the
		// next day.
		{58000, 0.99999999999999, "58001.0000000000000"},
	}
	for _, tt := range tests {
		if got := arpa.FormatMJD(tt.mjdInt, tt.mjdFrac); got != tt.want {
			t.Errorf("FormatMJD(%d, %v) = %q, want %q", tt.mjdInt, tt.mjdFrac, got, tt.want)
		}
	}
}

func TestWriteTim(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	svc := arpa.NewArchiveService(f.db, f.store, arpa.NewNopLogger(), f.clock, arpa.ServiceOptions{})

	if _, err := f.chef.Cook(ctx, f.cookRequest()); err != nil {
		t.Fatalf("Cook() error = %v", err)
	}

	var buf bytes.Buffer
	count, err := svc.WriteTim(ctx, &buf, f.pulsarID, nil, nil)
	if err != nil {
		t.Fatalf("WriteTim() error = %v", err)
	}
	if count != 2 {
		t.Fatalf("WriteTim() wrote %d TOAs, want 2", count)
	}

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if lines[0] != "FORMAT 1" {
		t.Fatalf("first line = %q, want FORMAT 1 header", lines[0])
	}
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want header plus 2 TOAs", len(lines))
	}

	for _, line := range lines[1:] {
		fields := strings.Fields(line)
		if len(fields) != 5 {
			t.Fatalf("TOA line %q has %d fields, want 5", line, len(fields))
		}
		if fields[0] != "obs1.cf" {
			t.Errorf("file field = %q, want obs1.cf", fields[0])
		}
		if fields[4] != "7" {
			t.Errorf("site field = %q, want telescope code 7", fields[4])
		}
		if !strings.Contains(fields[2], ".") {
			t.Errorf("MJD field %q has no fractional part", fields[2])
		}
	}
}

func TestWriteTim_MJDBounds(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	svc := arpa.NewArchiveService(f.db, f.store, arpa.NewNopLogger(), f.clock, arpa.ServiceOptions{})

	if _, err := f.chef.Cook(ctx, f.cookRequest()); err != nil {
		t.Fatalf("Cook() error = %v", err)
	}

	// The stub fit produces TOAs at 58000.12... and 58000.22...; bound
	// the window to just the first.
	from, to := 58000.1, 58000.2
	var buf bytes.Buffer
	count, err := svc.WriteTim(ctx, &buf, f.pulsarID, &from, &to)
	if err != nil {
		t.Fatalf("WriteTim() error = %v", err)
	}
	if count != 1 {
		t.Errorf("WriteTim() wrote %d TOAs in [%v, %v], want 1", count, from, to)
	}
}
