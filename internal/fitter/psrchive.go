package fitter

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"arpa-go/internal/arpa"
)

// PsrchiveFitter produces TOAs by shelling out to the psrchive tools:
// pam installs the ephemeris and scrunches the archive to the requested
// channel/subint resolution, pat cross-correlates against the template
// and prints tempo2-format TOA lines.
type PsrchiveFitter struct {
	binDir  string // directory holding pam/pat; empty means $PATH
	tempDir string // scratch space; empty means the system default
}

// NewPsrchiveFitter creates a fitter that runs pam and pat from binDir.
func NewPsrchiveFitter(binDir, tempDir string) *PsrchiveFitter {
	return &PsrchiveFitter{
		binDir:  binDir,
		tempDir: tempDir,
	}
}

func (f *PsrchiveFitter) tool(name string) string {
	if f.binDir == "" {
		return name
	}
	return filepath.Join(f.binDir, name)
}

// Fit runs the two-stage pam/pat pipeline and parses the resulting TOA
// lines. The intermediate scrunched archive lives in a per-call temp
// directory that is removed on return.
func (f *PsrchiveFitter) Fit(ctx context.Context, req arpa.FitRequest) (*arpa.FitResult, error) {
	workDir, err := os.MkdirTemp(f.tempDir, "arpa-fit-*")
	if err != nil {
		return nil, fmt.Errorf("creating fit scratch directory: %w", err)
	}
	defer os.RemoveAll(workDir)

	pamArgs := []string{
		"--setnchn", strconv.Itoa(req.NChannels),
		"--setnsub", strconv.Itoa(req.NSubints),
		"-e", "fit",
		"-u", workDir,
	}
	if req.EphemerisPath != "" {
		pamArgs = append(pamArgs, "-E", req.EphemerisPath)
	}
	pamArgs = append(pamArgs, req.RawPath)

	if out, err := f.run(ctx, "pam", pamArgs...); err != nil {
		return nil, &arpa.FitError{Method: req.Method, Output: out, Err: err}
	}

	// pam -u writes the output next to nothing: same basename as the
	// input, extension replaced by the -e value, inside workDir.
	base := filepath.Base(req.RawPath)
	scrunched := filepath.Join(workDir,
		strings.TrimSuffix(base, filepath.Ext(base))+".fit")

	patArgs := []string{
		"-f", "tempo2",
		"-A", req.Method,
		"-s", req.TemplatePath,
		scrunched,
	}
	out, err := f.run(ctx, "pat", patArgs...)
	if err != nil {
		return nil, &arpa.FitError{Method: req.Method, Output: out, Err: err}
	}

	toas, err := parseTempo2Output(out)
	if err != nil {
		return nil, &arpa.FitError{Method: req.Method, Output: out, Err: err}
	}
	if len(toas) == 0 {
		return nil, &arpa.FitError{
			Method: req.Method,
			Output: out,
			Err:    fmt.Errorf("fit produced no TOAs"),
		}
	}

	return &arpa.FitResult{
		TOAs:      toas,
		Residuals: residualStats(toas),
	}, nil
}

// run executes one psrchive tool, returning combined output.
func (f *PsrchiveFitter) run(ctx context.Context, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, f.tool(name), args...)
	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf
	if err := cmd.Run(); err != nil {
		return buf.String(), fmt.Errorf("%s failed: %w", name, err)
	}
	return buf.String(), nil
}

// parseTempo2Output extracts TOAs from pat's tempo2-format output.
// The format is a "FORMAT 1" header followed by one line per TOA:
//
//	<file> <freq MHz> <MJD> <uncertainty us> <site> ...
//
// Comment lines start with "C" or "#". The MJD is split at the decimal
// point so the fractional day keeps full precision.
func parseTempo2Output(out string) ([]arpa.FittedTOA, error) {
	var toas []arpa.FittedTOA
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || line == "FORMAT 1" ||
			strings.HasPrefix(line, "C ") || strings.HasPrefix(line, "#") {
			continue
		}

		fields := strings.Fields(line)
		if len(fields) < 5 {
			return nil, fmt.Errorf("malformed TOA line: %q", line)
		}

		freq, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			return nil, fmt.Errorf("parsing frequency in %q: %w", line, err)
		}
		mjdInt, mjdFrac, err := splitMJD(fields[2])
		if err != nil {
			return nil, fmt.Errorf("parsing MJD in %q: %w", line, err)
		}
		uncertainty, err := strconv.ParseFloat(fields[3], 64)
		if err != nil {
			return nil, fmt.Errorf("parsing uncertainty in %q: %w", line, err)
		}

		toas = append(toas, arpa.FittedTOA{
			MJDInt:      mjdInt,
			MJDFrac:     mjdFrac,
			Uncertainty: uncertainty,
			Frequency:   freq,
		})
	}
	return toas, nil
}

// splitMJD separates an MJD string into whole days and fractional day.
// Parsing the fraction on its own avoids losing the sub-microsecond
// digits a single float64 parse of the full value would drop.
func splitMJD(s string) (int, float64, error) {
	intPart := s
	fracPart := ""
	if i := strings.IndexByte(s, '.'); i >= 0 {
		intPart = s[:i]
		fracPart = s[i:]
	}

	days, err := strconv.Atoi(intPart)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid MJD day %q: %w", s, err)
	}

	frac := 0.0
	if fracPart != "" && fracPart != "." {
		frac, err = strconv.ParseFloat("0"+fracPart, 64)
		if err != nil {
			return 0, 0, fmt.Errorf("invalid MJD fraction %q: %w", s, err)
		}
	}
	return days, frac, nil
}

// residualStats summarizes fit quality as the RMS of the TOA
// uncertainties.
func residualStats(toas []arpa.FittedTOA) arpa.ResidualStats {
	var sumSq float64
	for _, t := range toas {
		sumSq += t.Uncertainty * t.Uncertainty
	}
	return arpa.ResidualStats{
		Count: len(toas),
		RMS:   math.Sqrt(sumSq / float64(len(toas))),
	}
}

// Compile-time check that PsrchiveFitter implements arpa.Fitter
var _ arpa.Fitter = (*PsrchiveFitter)(nil)
