package fitter

import (
	"math"
	"testing"

	"arpa-go/internal/arpa"
)

func TestParseTempo2Output(t *testing.T) {
	t.Run("parses TOA lines and skips comments", func(t *testing.T) {
		out := "FORMAT 1\n" +
			"C generated by pat\n" +
			"# another comment\n" +
			"obs1.fit 1369.000000 58000.1234567890123 1.105 7\n" +
			"obs1.fit 1433.000000 58000.2234567890123 0.871 7 -flag x\n" +
			"\n"

		toas, err := parseTempo2Output(out)
		if err != nil {
			t.Fatalf("parseTempo2Output() error = %v", err)
		}
		if len(toas) != 2 {
			t.Fatalf("got %d TOAs, want 2", len(toas))
		}

		first := toas[0]
		if first.MJDInt != 58000 {
			t.Errorf("MJDInt = %d, want 58000", first.MJDInt)
		}
		if math.Abs(first.MJDFrac-0.1234567890123) > 1e-15 {
			t.Errorf("MJDFrac = %.16f, want 0.1234567890123", first.MJDFrac)
		}
		if first.Frequency != 1369.0 {
			t.Errorf("Frequency = %v, want 1369.0", first.Frequency)
		}
		if first.Uncertainty != 1.105 {
			t.Errorf("Uncertainty = %v, want 1.105", first.Uncertainty)
		}
	})

	t.Run("empty output yields no TOAs", func(t *testing.T) {
		toas, err := parseTempo2Output("FORMAT 1\n")
		if err != nil {
			t.Fatalf("parseTempo2Output() error = %v", err)
		}
		if len(toas) != 0 {
			t.Errorf("got %d TOAs, want 0", len(toas))
		}
	})

	t.Run("short line is malformed", func(t *testing.T) {
		if _, err := parseTempo2Output("obs1.fit 1369.0 58000.5\n"); err == nil {
			t.Fatal("parseTempo2Output() = nil error for short line")
		}
	})

	t.Run("bad MJD is an error", func(t *testing.T) {
		if _, err := parseTempo2Output("obs1.fit 1369.0 not-a-day 1.1 7\n"); err == nil {
			t.Fatal("parseTempo2Output() = nil error for bad MJD")
		}
	})
}

func TestSplitMJD(t *testing.T) {
	tests := []struct {
		in       string
		wantInt  int
		wantFrac float64
	}{
		{"58000.1234567890123", 58000, 0.1234567890123},
		{"58000", 58000, 0},
		{"51000.5", 51000, 0.5},
	}
	for _, tt := range tests {
		days, frac, err := splitMJD(tt.in)
		if err != nil {
			t.Errorf("splitMJD(%q) error = %v", tt.in, err)
			continue
		}
		if days != tt.wantInt {
			t.Errorf("splitMJD(%q) days = %d, want %d", tt.in, days, tt.wantInt)
		}
		if math.Abs(frac-tt.wantFrac) > 1e-15 {
			t.Errorf("splitMJD(%q) frac = %.16f, want %v", tt.in, frac, tt.wantFrac)
		}
	}

	if _, _, err := splitMJD("nope"); err == nil {
		t.Error("splitMJD(nope) = nil error")
	}
}

func TestResidualStats(t *testing.T) {
	stats := residualStats([]arpa.FittedTOA{
		{Uncertainty: 3.0},
		{Uncertainty: 4.0},
	})
	if stats.Count != 2 {
		t.Errorf("Count = %d, want 2", stats.Count)
	}
	// sqrt((9+16)/2)
	want := math.Sqrt(12.5)
	if math.Abs(stats.RMS-want) > 1e-12 {
		t.Errorf("RMS = %v, want %v", stats.RMS, want)
	}
}
