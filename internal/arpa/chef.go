package arpa

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"arpa-go/internal/model"
)

// State is a stage in the cooking pipeline. The pipeline only moves
// forward; a terminal state is one of Completed, Deduplicated,
// Rejected, FitFailed, or ExtractionFailed.
type State string

const (
	StateReceived          State = "received"
	StateRejected          State = "rejected"
	StateDeduplicated      State = "deduplicated"
	StateEphemerisResolved State = "ephemeris_resolved"
	StateFitting           State = "fitting"
	StateFitted            State = "fitted"
	StateFitFailed         State = "fit_failed"
	StateExtracting        State = "extracting"
	StateCompleted         State = "completed"
	StateExtractionFailed  State = "extraction_failed"
)

// CookRequest describes one pipeline run over an ingested raw file.
type CookRequest struct {
	RawID      int64
	TemplateID int64

	// EphemerisID selects an explicit par version. Nil means use the
	// pulsar's master ephemeris, resolved at cook time.
	EphemerisID *int64

	Method    string
	NChannels int
	NSubints  int

	UserID int64

	// Force runs the fit even when an identical run is already
	// recorded, creating a second process row.
	Force bool
}

// CookResult reports where the pipeline ended up. ProcessID is set for
// both Completed and Deduplicated outcomes; for Deduplicated it names
// the earlier run whose TOAs already cover these inputs.
type CookResult struct {
	State        State
	ProcessID    int64
	TOAIDs       []int64
	Deduplicated bool
	Residuals    ResidualStats
}

// Chef orchestrates the cooking pipeline: resolve inputs, check for an
// identical earlier run, fit TOAs via the external tools, and record
// the process with its TOA batch atomically. A failed fit writes
// nothing.
type Chef struct {
	database Database
	storage  Storage
	fitter   Fitter
	logger   Logger
	clock    Clock
}

// NewChef creates a new Chef with the provided dependencies.
func NewChef(database Database, storage Storage, fitter Fitter, logger Logger, clock Clock) *Chef {
	return &Chef{
		database: database,
		storage:  storage,
		fitter:   fitter,
		logger:   logger,
		clock:    clock,
	}
}

// Cook runs the pipeline for one raw file. The returned CookResult is
// meaningful even on error: its State names the stage that failed.
func (c *Chef) Cook(ctx context.Context, req CookRequest) (*CookResult, error) {
	result := &CookResult{State: StateReceived}

	raw, err := c.database.GetRawFile(ctx, req.RawID)
	if err != nil {
		result.State = StateRejected
		return result, err
	}

	template, err := c.database.GetTemplate(ctx, req.TemplateID)
	if err != nil {
		result.State = StateRejected
		return result, err
	}
	if template.PulsarID != raw.PulsarID {
		result.State = StateRejected
		return result, &ConsistencyError{
			Detail: fmt.Sprintf("template id=%d belongs to pulsar id=%d, raw file belongs to id=%d",
				template.ID, template.PulsarID, raw.PulsarID),
		}
	}

	ephemeris, err := c.resolveEphemeris(ctx, raw, req.EphemerisID)
	if err != nil {
		result.State = StateRejected
		return result, err
	}
	result.State = StateEphemerisResolved

	key := ProcessKey{
		RawID:       raw.ID,
		EphemerisID: ephemerisID(ephemeris),
		TemplateID:  template.ID,
		Method:      req.Method,
		NChannels:   req.NChannels,
		NSubints:    req.NSubints,
	}

	// Identical inputs are the same computation. Unless forced, an
	// earlier run short-circuits the whole pipeline, skipping the fit.
	if !req.Force {
		existing, err := c.database.FindDuplicateProcess(ctx, key)
		if err != nil {
			result.State = StateRejected
			return result, err
		}
		if existing != nil {
			c.logger.Info("cook deduplicated", "raw_id", raw.ID, "process_id", existing.ID)
			result.State = StateDeduplicated
			result.ProcessID = existing.ID
			result.Deduplicated = true
			return result, nil
		}
	}

	result.State = StateFitting
	fit, err := c.runFit(ctx, raw, ephemeris, template, req)
	if err != nil {
		result.State = StateFitFailed
		return result, err
	}
	result.State = StateFitted
	result.Residuals = fit.Residuals

	result.State = StateExtracting
	process := &model.Process{
		RawID:       raw.ID,
		EphemerisID: key.EphemerisID,
		TemplateID:  template.ID,
		NChannels:   req.NChannels,
		NSubints:    req.NSubints,
		Method:      req.Method,
		UserID:      req.UserID,
		CreatedAt:   c.clock.Now(),
	}
	toas := make([]*model.TOA, 0, len(fit.TOAs))
	for _, t := range fit.TOAs {
		toas = append(toas, &model.TOA{
			TemplateID:  template.ID,
			RawID:       raw.ID,
			PulsarID:    raw.PulsarID,
			ObserverID:  raw.ObserverID,
			MJDInt:      t.MJDInt,
			MJDFrac:     t.MJDFrac,
			Uncertainty: t.Uncertainty,
			Frequency:   t.Frequency,
		})
	}

	processID, toaIDs, err := c.database.CreateProcessWithTOAs(ctx, process, toas, req.Force)
	if err != nil {
		// A concurrent cook with the same inputs may have committed
		// between our duplicate check and the insert. Its result is as
		// good as ours would have been.
		if dup, ok := err.(*DuplicateProcessError); ok {
			c.logger.Info("cook lost duplicate race", "raw_id", raw.ID, "process_id", dup.ProcessID)
			result.State = StateDeduplicated
			result.ProcessID = dup.ProcessID
			result.Deduplicated = true
			return result, nil
		}
		result.State = StateExtractionFailed
		return result, fmt.Errorf("recording process run: %w", err)
	}

	result.State = StateCompleted
	result.ProcessID = processID
	result.TOAIDs = toaIDs

	c.logger.Info("cook completed",
		"raw_id", raw.ID, "process_id", processID, "toas", len(toaIDs),
		"rms_us", fit.Residuals.RMS)
	return result, nil
}

// resolveEphemeris picks the par version for the run: the explicit one
// when given (verified to belong to the raw file's pulsar), otherwise
// the pulsar's master, resolved fresh so a redesignation between runs
// takes effect.
func (c *Chef) resolveEphemeris(ctx context.Context, raw *model.RawFile, explicit *int64) (*model.Ephemeris, error) {
	if explicit != nil {
		e, err := c.database.GetEphemeris(ctx, *explicit)
		if err != nil {
			return nil, err
		}
		if e.PulsarID != raw.PulsarID {
			return nil, &ConsistencyError{
				Detail: fmt.Sprintf("ephemeris id=%d belongs to pulsar id=%d, raw file belongs to id=%d",
					e.ID, e.PulsarID, raw.PulsarID),
			}
		}
		return e, nil
	}

	e, err := c.database.ResolveMasterEphemeris(ctx, raw.PulsarID)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, &NoEphemerisError{PulsarID: raw.PulsarID}
	}
	return e, nil
}

// runFit materializes the input files and invokes the fitter.
func (c *Chef) runFit(ctx context.Context, raw *model.RawFile, ephemeris *model.Ephemeris, template *model.Template, req CookRequest) (*FitResult, error) {
	workDir, err := os.MkdirTemp("", "arpa-cook-*")
	if err != nil {
		return nil, fmt.Errorf("creating cook scratch directory: %w", err)
	}
	defer os.RemoveAll(workDir)

	rawPath, err := c.localPath(raw.FilePath, workDir)
	if err != nil {
		return nil, fmt.Errorf("materializing raw file: %w", err)
	}
	ephemerisPath, err := c.localPath(ephemeris.FilePath, workDir)
	if err != nil {
		return nil, fmt.Errorf("materializing par file: %w", err)
	}
	templatePath, err := c.localPath(template.FilePath, workDir)
	if err != nil {
		return nil, fmt.Errorf("materializing template: %w", err)
	}

	return c.fitter.Fit(ctx, FitRequest{
		RawPath:       rawPath,
		EphemerisPath: ephemerisPath,
		TemplatePath:  templatePath,
		Method:        req.Method,
		NChannels:     req.NChannels,
		NSubints:      req.NSubints,
	})
}

// localPath makes an archived file available on the local filesystem.
// Absolute paths are unarchived originals and used as-is; relative
// paths are archive keys fetched into workDir.
func (c *Chef) localPath(filePath, workDir string) (string, error) {
	if filepath.IsAbs(filePath) {
		return filePath, nil
	}

	dest := filepath.Join(workDir, filepath.Base(filePath))
	f, err := os.Create(dest)
	if err != nil {
		return "", fmt.Errorf("creating %s: %w", dest, err)
	}
	defer f.Close()

	if err := c.storage.Get(filePath, f); err != nil {
		return "", err
	}
	return dest, nil
}

func ephemerisID(e *model.Ephemeris) *int64 {
	if e == nil {
		return nil
	}
	id := e.ID
	return &id
}
