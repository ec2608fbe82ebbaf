package testutil

import (
	"context"
	"fmt"
	"sync"

	"arpa-go/internal/arpa"
)

// StubFitter returns canned TOAs without shelling out to anything.
// It records every request it sees. Safe for concurrent use.
type StubFitter struct {
	mu       sync.Mutex
	result   *arpa.FitResult
	err      error
	requests []arpa.FitRequest
}

// NewStubFitter creates a StubFitter that succeeds with two TOAs.
func NewStubFitter() *StubFitter {
	return &StubFitter{
		result: &arpa.FitResult{
			TOAs: []arpa.FittedTOA{
				{MJDInt: 58000, MJDFrac: 0.1234567890123, Uncertainty: 1.2, Frequency: 1400.0},
				{MJDInt: 58000, MJDFrac: 0.2234567890123, Uncertainty: 0.9, Frequency: 1400.0},
			},
			Residuals: arpa.ResidualStats{Count: 2, RMS: 1.06},
		},
	}
}

// Fail makes every subsequent Fit call return a FitError.
func (f *StubFitter) Fail(msg string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = &arpa.FitError{Method: "stub", Err: fmt.Errorf("%s", msg)}
}

// SetResult replaces the canned result.
func (f *StubFitter) SetResult(result *arpa.FitResult) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.result = result
	f.err = nil
}

// Requests returns a copy of every FitRequest seen so far.
func (f *StubFitter) Requests() []arpa.FitRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]arpa.FitRequest, len(f.requests))
	copy(out, f.requests)
	return out
}

func (f *StubFitter) Fit(_ context.Context, req arpa.FitRequest) (*arpa.FitResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

// Compile-time check that StubFitter implements arpa.Fitter
var _ arpa.Fitter = (*StubFitter)(nil)
