package arpa

import (
	"context"

	"arpa-go/internal/model"
)

// ProcessKey is the input tuple that identifies a pipeline run.
// Two runs with equal keys are the same computation; a second one is
// only allowed when explicitly forced.
type ProcessKey struct {
	RawID       int64
	EphemerisID *int64
	TemplateID  int64
	Method      string
	NChannels   int
	NSubints    int
}

// Database is the metadata store access layer. Implementations
// pre-validate foreign keys before writing, so constraint problems
// surface as typed errors (ReferentialViolationError, NotFoundError)
// rather than raw driver errors. Multi-row operations are atomic.
type Database interface {
	// Telescopes and observing systems (reference data)

	// CreateTelescope inserts a telescope, rejecting name/code collisions.
	CreateTelescope(ctx context.Context, t *model.Telescope) (int64, error)

	GetTelescope(ctx context.Context, id int64) (*model.Telescope, error)

	// FindTelescope matches by name or abbreviation (case-insensitive).
	// Returns nil when there is no match.
	FindTelescope(ctx context.Context, name string) (*model.Telescope, error)

	ListTelescopes(ctx context.Context) ([]*model.Telescope, error)

	// DeleteTelescope removes a telescope. Fails with
	// ReferentialViolationError while any observing system references it.
	DeleteTelescope(ctx context.Context, id int64) error

	CreateObsSystem(ctx context.Context, o *model.ObsSystem) (int64, error)
	GetObsSystem(ctx context.Context, id int64) (*model.ObsSystem, error)

	// FindObsSystem matches by telescope and frontend/backend pair.
	// Returns nil when there is no match.
	FindObsSystem(ctx context.Context, telescopeID int64, frontend, backend string) (*model.ObsSystem, error)

	// DeleteObsSystem removes an observing system. Fails with
	// ReferentialViolationError while any raw file or TOA references it.
	DeleteObsSystem(ctx context.Context, id int64) error

	// Pulsars

	CreatePulsar(ctx context.Context, p *model.Pulsar) (int64, error)
	GetPulsar(ctx context.Context, id int64) (*model.Pulsar, error)

	// FindPulsar matches by alias or J name. Returns nil when there is
	// no match.
	FindPulsar(ctx context.Context, name string) (*model.Pulsar, error)

	ListPulsars(ctx context.Context) ([]*model.Pulsar, error)

	// DeletePulsar removes a pulsar. Fails with
	// ReferentialViolationError while any ephemeris, template, raw file,
	// or TOA references it.
	DeletePulsar(ctx context.Context, id int64) error

	// Ephemerides

	CreateEphemeris(ctx context.Context, e *model.Ephemeris) (int64, error)
	GetEphemeris(ctx context.Context, id int64) (*model.Ephemeris, error)
	FindEphemerisByChecksum(ctx context.Context, checksum string) (*model.Ephemeris, error)

	// EphemerisHistory returns all ephemeris versions for a pulsar in
	// creation order.
	EphemerisHistory(ctx context.Context, pulsarID int64) ([]*model.Ephemeris, error)

	// DeleteEphemeris removes an ephemeris version. Fails with
	// ReferentialViolationError while any process run or master
	// designation still references it.
	DeleteEphemeris(ctx context.Context, id int64) error

	// SetMasterEphemeris atomically replaces the pulsar's master
	// designation. The ephemeris must belong to the pulsar.
	SetMasterEphemeris(ctx context.Context, pulsarID, ephemerisID int64) error

	// ResolveMasterEphemeris returns the pulsar's current master, or
	// nil if none is set. Never cached: the designation can change
	// underneath long-lived processes.
	ResolveMasterEphemeris(ctx context.Context, pulsarID int64) (*model.Ephemeris, error)

	// Templates

	CreateTemplate(ctx context.Context, t *model.Template) (int64, error)
	GetTemplate(ctx context.Context, id int64) (*model.Template, error)
	FindTemplateByChecksum(ctx context.Context, checksum string) (*model.Template, error)

	// DeleteTemplate removes a template. Fails with
	// ReferentialViolationError while any process run references it.
	DeleteTemplate(ctx context.Context, id int64) error

	// Raw files

	CreateRawFile(ctx context.Context, r *model.RawFile) (int64, error)
	GetRawFile(ctx context.Context, id int64) (*model.RawFile, error)

	// FindRawFileByChecksum is the deduplication lookup. Returns nil
	// when the content has never been ingested.
	FindRawFileByChecksum(ctx context.Context, checksum string) (*model.RawFile, error)

	// DeleteRawFile removes a raw-file row. Fails with
	// ReferentialViolationError while any process run references it.
	// The archived bytes are not touched.
	DeleteRawFile(ctx context.Context, id int64) error

	// Process runs and TOAs

	// FindDuplicateProcess returns the earliest process run matching
	// the key, or nil.
	FindDuplicateProcess(ctx context.Context, key ProcessKey) (*model.Process, error)

	// CreateProcessWithTOAs inserts a process row and its TOA batch in
	// one transaction. Unless force is set, an existing run with the
	// same key fails the whole batch with DuplicateProcessError. Either
	// all rows commit or none do.
	CreateProcessWithTOAs(ctx context.Context, p *model.Process, toas []*model.TOA, force bool) (int64, []int64, error)

	GetProcess(ctx context.Context, id int64) (*model.Process, error)
	ProcessesForRawFile(ctx context.Context, rawID int64) ([]*model.Process, error)

	// ToasForPulsar returns TOAs for a pulsar whose arrival time lies
	// in [fromMJD, toMJD]. A nil bound is open.
	ToasForPulsar(ctx context.Context, pulsarID int64, fromMJD, toMJD *float64) ([]*model.TOA, error)

	CountToasForProcess(ctx context.Context, processID int64) (int, error)

	// Users

	CreateUser(ctx context.Context, u *model.User, passwordHash string) (int64, error)

	// FindUser matches by username. Returns nil when there is no match.
	FindUser(ctx context.Context, username string) (*model.User, error)

	// CheckMigrations verifies the schema is at the latest version.
	CheckMigrations() error

	// Close closes the underlying connection.
	Close() error
}
