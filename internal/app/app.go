package app

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"

	"arpa-go/internal/arpa"
	"arpa-go/internal/config"
	"arpa-go/internal/database"
	"arpa-go/internal/fitter"
	"arpa-go/internal/model"
	"arpa-go/internal/storage"
)

// ArpaApp is the application layer between the CLI and the archive
// services. It constructs all dependencies from config, exposes
// high-level operations that accept raw strings and ids, and manages
// the DB lifecycle on Close.
type ArpaApp struct {
	cfg     *config.Config
	db      arpa.Database
	storage arpa.Storage
	service *arpa.ArchiveService
	chef    *arpa.Chef
	logFile *os.File
}

// NewArpaApp creates a fully wired ArpaApp from the given config.
// operation identifies the CLI command being run (e.g. "Toast", "AddPar").
// The caller must call Close when done.
func NewArpaApp(ctx context.Context, cfg *config.Config, operation string) (*ArpaApp, error) {
	db, err := database.NewDatabaseFromConfig(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("creating database: %w", err)
	}

	if err := db.CheckMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("database schema out of date: %w", err)
	}

	store, err := storage.NewStorageFromConfig(ctx, cfg.Archive)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating archive storage: %w", err)
	}
	if err := store.ValidateSetup(); err != nil {
		db.Close()
		return nil, fmt.Errorf("validating archive storage: %w", err)
	}

	fit, err := fitter.NewFitterFromConfig(cfg.Fitter)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating fitter: %w", err)
	}

	opID := operation + "-" + uuid.New().String()[:8]
	logger, logFile, err := newLogger(cfg.LogDir, opID)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating logger: %w", err)
	}

	adapter := &slogAdapter{l: logger}
	clock := arpa.RealClock{}

	svc := arpa.NewArchiveService(db, store, adapter, clock, arpa.ServiceOptions{
		AutoAddPulsars:        cfg.Behaviour.AutoAddPulsars,
		ArchiveRawFiles:       cfg.Behaviour.ArchiveRawFiles,
		MoveRawFiles:          cfg.Behaviour.MoveRawFiles,
		AutoResolveDuplicates: cfg.Behaviour.AutoResolveDuplicates,
	})
	chef := arpa.NewChef(db, store, fit, adapter, clock)

	return &ArpaApp{
		cfg:     cfg,
		db:      db,
		storage: store,
		service: svc,
		chef:    chef,
		logFile: logFile,
	}, nil
}

// AddTelescope registers a telescope site.
func (a *ArpaApp) AddTelescope(ctx context.Context, name, abbreviation, code string, x, y, z float64) (int64, error) {
	return a.service.AddTelescope(ctx, &model.Telescope{
		Name:         name,
		Abbreviation: abbreviation,
		Code:         code,
		X:            x,
		Y:            y,
		Z:            z,
	})
}

// ListTelescopes returns all registered telescopes.
func (a *ArpaApp) ListTelescopes(ctx context.Context) ([]*model.Telescope, error) {
	return a.db.ListTelescopes(ctx)
}

// DeleteTelescope removes an unreferenced telescope, resolved by name
// or abbreviation.
func (a *ArpaApp) DeleteTelescope(ctx context.Context, name string) error {
	telescope, err := a.db.FindTelescope(ctx, name)
	if err != nil {
		return err
	}
	if telescope == nil {
		return &arpa.NotFoundError{Table: "telescopes", Key: name}
	}
	return a.db.DeleteTelescope(ctx, telescope.ID)
}

// AddObsSystem registers a frontend/backend combination, resolving the
// telescope by name or abbreviation.
func (a *ArpaApp) AddObsSystem(ctx context.Context, name, telescopeName, frontend, backend, clockName, code string) (int64, error) {
	telescope, err := a.db.FindTelescope(ctx, telescopeName)
	if err != nil {
		return 0, err
	}
	if telescope == nil {
		return 0, &arpa.NotFoundError{Table: "telescopes", Key: telescopeName}
	}

	return a.service.AddObsSystem(ctx, &model.ObsSystem{
		Name:        name,
		TelescopeID: telescope.ID,
		Frontend:    frontend,
		Backend:     backend,
		Clock:       clockName,
		Code:        code,
	})
}

// AddPulsar registers a pulsar. Empty optional fields are stored NULL.
func (a *ArpaApp) AddPulsar(ctx context.Context, alias, jName, bName, ra, dec string) (int64, error) {
	return a.service.AddPulsar(ctx, &model.Pulsar{
		Alias: alias,
		JName: optional(jName),
		BName: optional(bName),
		RA:    optional(ra),
		Dec:   optional(dec),
	})
}

// ListPulsars returns all registered pulsars.
func (a *ArpaApp) ListPulsars(ctx context.Context) ([]*model.Pulsar, error) {
	return a.db.ListPulsars(ctx)
}

// DeletePulsar removes a pulsar with no recorded files or runs.
func (a *ArpaApp) DeletePulsar(ctx context.Context, name string) error {
	pulsar, err := a.service.PulsarByName(ctx, name)
	if err != nil {
		return err
	}
	return a.db.DeletePulsar(ctx, pulsar.ID)
}

// DeleteObsSystem removes an unreferenced observing system.
func (a *ArpaApp) DeleteObsSystem(ctx context.Context, id int64) error {
	return a.db.DeleteObsSystem(ctx, id)
}

// AddPar registers a par file for the named pulsar.
func (a *ArpaApp) AddPar(ctx context.Context, pulsarName, path string, master bool) (int64, error) {
	pulsar, err := a.service.PulsarByName(ctx, pulsarName)
	if err != nil {
		return 0, err
	}
	return a.service.AddEphemeris(ctx, pulsar.ID, path, master)
}

// ParHistory lists every par version for the named pulsar, along with
// the id of the current master (nil when none is designated).
func (a *ArpaApp) ParHistory(ctx context.Context, pulsarName string) ([]*model.Ephemeris, *int64, error) {
	pulsar, err := a.service.PulsarByName(ctx, pulsarName)
	if err != nil {
		return nil, nil, err
	}
	return a.service.EphemerisHistory(ctx, pulsar.ID)
}

// SetMasterPar designates an existing par version as the pulsar's master.
func (a *ArpaApp) SetMasterPar(ctx context.Context, pulsarName string, ephemerisID int64) error {
	pulsar, err := a.service.PulsarByName(ctx, pulsarName)
	if err != nil {
		return err
	}
	return a.service.SetMasterEphemeris(ctx, pulsar.ID, ephemerisID)
}

// DeletePar removes an unreferenced par version.
func (a *ArpaApp) DeletePar(ctx context.Context, ephemerisID int64) error {
	return a.db.DeleteEphemeris(ctx, ephemerisID)
}

// DeleteTemplate removes a template no process run references.
func (a *ArpaApp) DeleteTemplate(ctx context.Context, id int64) error {
	return a.db.DeleteTemplate(ctx, id)
}

// DeleteRawFile removes a raw-file row no run references. Archived
// bytes stay in storage.
func (a *ArpaApp) DeleteRawFile(ctx context.Context, id int64) error {
	return a.db.DeleteRawFile(ctx, id)
}

// AddTemplate registers a profile template for the named pulsar.
func (a *ArpaApp) AddTemplate(ctx context.Context, pulsarName, path string) (int64, error) {
	pulsar, err := a.service.PulsarByName(ctx, pulsarName)
	if err != nil {
		return 0, err
	}
	return a.service.AddTemplate(ctx, pulsar.ID, path)
}

// AddUser registers an operator account.
func (a *ArpaApp) AddUser(ctx context.Context, username, realName, email string, admin bool, password string) (int64, error) {
	return a.service.AddUser(ctx, &model.User{
		Username: username,
		RealName: realName,
		Email:    email,
		IsAdmin:  admin,
	}, password)
}

// Ingest admits a raw observation file without cooking it.
func (a *ArpaApp) Ingest(ctx context.Context, path, pulsarName string, obsSystemID int64) (*arpa.IngestResult, error) {
	return a.service.IngestRawFile(ctx, arpa.IngestRequest{
		Path:        path,
		PulsarName:  pulsarName,
		ObsSystemID: obsSystemID,
	})
}

// ToastArgs describes one end-to-end toast: ingest (unless RawID names
// an already-ingested file) followed by a cook. Zero-valued fit
// parameters fall back to the configured behaviour defaults.
type ToastArgs struct {
	// Either RawID or Path identifies the observation.
	RawID int64
	Path  string

	PulsarName  string // source hint for ingestion
	ObsSystemID int64  // required when ingesting by Path

	// Either TemplateID or TemplatePath identifies the template; a path
	// is registered (checksum-deduplicated) on the fly.
	TemplateID   int64
	TemplatePath string

	// Optional explicit par version; zero values mean the master.
	EphemerisID   int64
	EphemerisPath string

	Method    string
	NChannels int
	NSubints  int

	Force bool
}

// Toast runs the full pipeline for one observation and returns where
// it ended up.
func (a *ArpaApp) Toast(ctx context.Context, args ToastArgs) (*arpa.CookResult, error) {
	userID, err := a.resolveOperator(ctx)
	if err != nil {
		return nil, err
	}

	rawID := args.RawID
	if rawID == 0 {
		ingested, err := a.service.IngestRawFile(ctx, arpa.IngestRequest{
			Path:        args.Path,
			PulsarName:  args.PulsarName,
			ObsSystemID: args.ObsSystemID,
		})
		if err != nil {
			return nil, err
		}
		rawID = ingested.RawID
	}

	raw, err := a.db.GetRawFile(ctx, rawID)
	if err != nil {
		return nil, err
	}

	templateID := args.TemplateID
	if templateID == 0 {
		if args.TemplatePath == "" {
			return nil, fmt.Errorf("template required: pass an id or a path")
		}
		templateID, err = a.service.AddTemplate(ctx, raw.PulsarID, args.TemplatePath)
		if err != nil {
			return nil, err
		}
	}

	var ephemerisID *int64
	switch {
	case args.EphemerisID != 0:
		ephemerisID = &args.EphemerisID
	case args.EphemerisPath != "":
		id, err := a.service.AddEphemeris(ctx, raw.PulsarID, args.EphemerisPath, false)
		if err != nil {
			return nil, err
		}
		ephemerisID = &id
	}

	method := args.Method
	if method == "" {
		method = a.cfg.Behaviour.Method
	}
	nChannels := args.NChannels
	if nChannels == 0 {
		nChannels = a.cfg.Behaviour.NChannels
	}
	nSubints := args.NSubints
	if nSubints == 0 {
		nSubints = a.cfg.Behaviour.NSubints
	}

	return a.chef.Cook(ctx, arpa.CookRequest{
		RawID:       rawID,
		TemplateID:  templateID,
		EphemerisID: ephemerisID,
		Method:      method,
		NChannels:   nChannels,
		NSubints:    nSubints,
		UserID:      userID,
		Force:       args.Force,
	})
}

// ProcessesForRawFile lists recorded runs over a raw file.
func (a *ArpaApp) ProcessesForRawFile(ctx context.Context, rawID int64) ([]*model.Process, error) {
	return a.service.ProcessesForRawFile(ctx, rawID)
}

// WriteTim writes the named pulsar's TOAs to w in tempo2 tim format,
// returning how many were written.
func (a *ArpaApp) WriteTim(ctx context.Context, w io.Writer, pulsarName string, from, to *float64) (int, error) {
	pulsar, err := a.service.PulsarByName(ctx, pulsarName)
	if err != nil {
		return 0, err
	}
	return a.service.WriteTim(ctx, w, pulsar.ID, from, to)
}

// resolveOperator maps the configured operator username to a user id
// for process provenance.
func (a *ArpaApp) resolveOperator(ctx context.Context) (int64, error) {
	if a.cfg.Behaviour.Operator == "" {
		return 0, fmt.Errorf("no operator configured: set behaviour.operator in the config")
	}
	user, err := a.db.FindUser(ctx, a.cfg.Behaviour.Operator)
	if err != nil {
		return 0, err
	}
	if user == nil {
		return 0, &arpa.NotFoundError{Table: "users", Key: a.cfg.Behaviour.Operator}
	}
	return user.ID, nil
}

// Close releases all resources.
func (a *ArpaApp) Close() error {
	var firstErr error
	if err := a.db.Close(); err != nil {
		firstErr = fmt.Errorf("closing database: %w", err)
	}
	if a.logFile != nil {
		a.logFile.Close()
	}
	return firstErr
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
