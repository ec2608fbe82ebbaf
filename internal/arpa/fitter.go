package arpa

import "context"

// FitRequest carries everything the external timing-fit routine needs.
// Paths point at the archived raw file, the par file, and the template
// profile.
type FitRequest struct {
	RawPath       string
	EphemerisPath string // empty when fitting without a par file
	TemplatePath  string
	Method        string // fitting algorithm, e.g. "FDM", "PGS"
	NChannels     int
	NSubints      int
}

// FittedTOA is one arrival-time measurement out of the fit. The MJD is
// split so the fractional day keeps full float64 precision.
type FittedTOA struct {
	MJDInt      int
	MJDFrac     float64
	Uncertainty float64 // microseconds
	Frequency   float64 // MHz
}

// ResidualStats summarizes the fit quality.
type ResidualStats struct {
	Count int
	RMS   float64 // microseconds
}

// FitResult is a successful fit: at least one TOA plus residual
// statistics.
type FitResult struct {
	TOAs      []FittedTOA
	Residuals ResidualStats
}

// Fitter is the external timing-analysis collaborator. The archive
// treats it as a black box: it either produces TOAs or fails with a
// FitError, and it never touches the metadata store.
type Fitter interface {
	Fit(ctx context.Context, req FitRequest) (*FitResult, error)
}
