package model

import "time"

// Telescope is a fixed observing site. Reference data, created
// administratively and never mutated.
type Telescope struct {
	ID           int64
	Name         string // Full name, stored lowercase
	Abbreviation string
	Code         string  // Site code used in TOA lines
	X            float64 // ITRF position in meters
	Y            float64
	Z            float64
}

// ObsSystem is one frontend/backend combination at a telescope.
// Raw files record the observing system that produced them.
type ObsSystem struct {
	ID          int64
	Name        string
	TelescopeID int64 // Foreign key to Telescope
	Frontend    string
	Backend     string
	Clock       string // Clock file identifier for timing corrections
	Code        string
}

// Pulsar is the central identity record everything else hangs off.
type Pulsar struct {
	ID    int64
	Alias string  // Unique across the archive
	JName *string // J2000 catalog name, if different from the alias
	BName *string // B1950 catalog name, if any

	RA  *string // Right ascension, "HH:MM:SS.F*"
	Dec *string // Declination, "±DD:MM:SS.F*"

	// MasterEphemerisID points at the currently preferred ephemeris
	// version. At most one per pulsar, by construction.
	MasterEphemerisID *int64
}

// Ephemeris is one versioned timing-model parameter set ("par" file).
// Multiple versions per pulsar coexist; rows are immutable.
type Ephemeris struct {
	ID        int64
	PulsarID  int64
	FilePath  string
	Checksum  string // SHA-256 of the file content
	CreatedAt time.Time
}

// Template is a reference pulse-profile shape used for TOA extraction.
type Template struct {
	ID        int64
	PulsarID  int64
	FilePath  string
	Checksum  string // SHA-256 of the file content
	CreatedAt time.Time
}

// RawFile is a stored observation. The checksum is the unit of
// deduplication: two rows may never share one.
type RawFile struct {
	ID         int64
	FilePath   string // Location within archive storage
	Checksum   string // SHA-256 of the file content
	PulsarID   int64
	ObserverID int64 // Foreign key to ObsSystem
	CreatedAt  time.Time
}

// Process is one pipeline run. Immutable once created; reprocessing
// always creates a new row so the audit history is append-only.
type Process struct {
	ID          int64
	RawID       int64
	EphemerisID *int64 // NULL when the raw file was fitted without a par
	TemplateID  int64
	NChannels   int
	NSubints    int
	Method      string // TOA fitting algorithm name
	UserID      int64
	CreatedAt   time.Time
}

// TOA is one timing measurement produced by a process run.
// Pulsar and observer references are redundant with the raw file's,
// kept for query convenience.
type TOA struct {
	ID         int64
	ProcessID  int64
	TemplateID int64
	RawID      int64
	PulsarID   int64
	ObserverID int64

	MJDInt      int     // Integer part of the arrival time (MJD days)
	MJDFrac     float64 // Fractional part of the arrival day
	Uncertainty float64 // Arrival-time error in microseconds
	Frequency   float64 // Observing frequency in MHz
}

// User is an archive operator, referenced by process runs for
// provenance. The credential hash is stored in the table but never
// carried on this struct.
type User struct {
	ID        int64
	Username  string
	RealName  string
	Email     string
	IsAdmin   bool
	CreatedAt time.Time
}
