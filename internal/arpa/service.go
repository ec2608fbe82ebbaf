package arpa

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"arpa-go/internal/model"
)

// ServiceOptions are the policy knobs controlling how registration
// reacts to unknown pulsars and repeated content.
type ServiceOptions struct {
	// AutoAddPulsars registers a pulsar on first sight instead of
	// rejecting a raw file whose source is unknown.
	AutoAddPulsars bool

	// ArchiveRawFiles copies ingested raw files into archive storage.
	// When false the database records the original absolute path.
	ArchiveRawFiles bool

	// MoveRawFiles removes the source file after a successful archive
	// copy. Only meaningful together with ArchiveRawFiles.
	MoveRawFiles bool

	// AutoResolveDuplicates makes re-ingestion of known content a
	// successful no-op pointing at the existing row, instead of an
	// error.
	AutoResolveDuplicates bool
}

// ArchiveService is the registration layer: it admits pulsars,
// ephemerides, templates, observing systems, users, and raw
// observation files into the archive, enforcing content-checksum
// deduplication on everything file-backed.
type ArchiveService struct {
	database Database
	storage  Storage
	logger   Logger
	clock    Clock
	opts     ServiceOptions
}

// NewArchiveService creates a new ArchiveService with the provided dependencies.
func NewArchiveService(database Database, storage Storage, logger Logger, clock Clock, opts ServiceOptions) *ArchiveService {
	return &ArchiveService{
		database: database,
		storage:  storage,
		logger:   logger,
		clock:    clock,
		opts:     opts,
	}
}

// AddTelescope registers a telescope. Names are stored lowercase so
// lookups are case-insensitive.
func (s *ArchiveService) AddTelescope(ctx context.Context, t *model.Telescope) (int64, error) {
	t.Name = strings.ToLower(t.Name)
	t.Abbreviation = strings.ToLower(t.Abbreviation)

	id, err := s.database.CreateTelescope(ctx, t)
	if err != nil {
		return 0, fmt.Errorf("adding telescope: %w", err)
	}

	s.logger.Info("telescope added", "name", t.Name, "id", id)
	return id, nil
}

// AddObsSystem registers a frontend/backend combination at a telescope.
func (s *ArchiveService) AddObsSystem(ctx context.Context, o *model.ObsSystem) (int64, error) {
	id, err := s.database.CreateObsSystem(ctx, o)
	if err != nil {
		return 0, fmt.Errorf("adding observing system: %w", err)
	}

	s.logger.Info("observing system added", "name", o.Name, "id", id)
	return id, nil
}

// AddPulsar registers a pulsar identity.
func (s *ArchiveService) AddPulsar(ctx context.Context, p *model.Pulsar) (int64, error) {
	id, err := s.database.CreatePulsar(ctx, p)
	if err != nil {
		return 0, fmt.Errorf("adding pulsar: %w", err)
	}

	s.logger.Info("pulsar added", "alias", p.Alias, "id", id)
	return id, nil
}

// AddEphemeris registers a par file for a pulsar. Content is
// deduplicated by checksum: re-registering a known par returns the
// existing row's id. The file is archived under the pulsar's directory,
// and the new version becomes the master when makeMaster is set or the
// pulsar has none yet.
func (s *ArchiveService) AddEphemeris(ctx context.Context, pulsarID int64, srcPath string, makeMaster bool) (int64, error) {
	pulsar, err := s.database.GetPulsar(ctx, pulsarID)
	if err != nil {
		return 0, err
	}

	checksum, err := ComputeChecksum(srcPath)
	if err != nil {
		return 0, err
	}

	existing, err := s.database.FindEphemerisByChecksum(ctx, checksum)
	if err != nil {
		return 0, err
	}
	if existing != nil {
		if existing.PulsarID != pulsarID {
			return 0, &ConsistencyError{
				Detail: fmt.Sprintf("par content already registered for pulsar id=%d, not id=%d",
					existing.PulsarID, pulsarID),
			}
		}
		s.logger.Debug("ephemeris deduplicated", "checksum", checksum, "id", existing.ID)
		return existing.ID, nil
	}

	key := path.Join(strings.ToUpper(pulsar.Alias), "par", filepath.Base(srcPath))
	if err := s.archiveFile(key, checksum, srcPath); err != nil {
		return 0, fmt.Errorf("archiving par file: %w", err)
	}

	id, err := s.database.CreateEphemeris(ctx, &model.Ephemeris{
		PulsarID:  pulsarID,
		FilePath:  key,
		Checksum:  checksum,
		CreatedAt: s.clock.Now(),
	})
	if err != nil {
		return 0, fmt.Errorf("recording ephemeris: %w", err)
	}

	if makeMaster || pulsar.MasterEphemerisID == nil {
		if err := s.database.SetMasterEphemeris(ctx, pulsarID, id); err != nil {
			return 0, fmt.Errorf("designating master ephemeris: %w", err)
		}
	}

	s.logger.Info("ephemeris added", "pulsar", pulsar.Alias, "id", id)
	return id, nil
}

// AddTemplate registers a profile template for a pulsar, deduplicated
// by checksum like ephemerides.
func (s *ArchiveService) AddTemplate(ctx context.Context, pulsarID int64, srcPath string) (int64, error) {
	pulsar, err := s.database.GetPulsar(ctx, pulsarID)
	if err != nil {
		return 0, err
	}

	checksum, err := ComputeChecksum(srcPath)
	if err != nil {
		return 0, err
	}

	existing, err := s.database.FindTemplateByChecksum(ctx, checksum)
	if err != nil {
		return 0, err
	}
	if existing != nil {
		if existing.PulsarID != pulsarID {
			return 0, &ConsistencyError{
				Detail: fmt.Sprintf("template content already registered for pulsar id=%d, not id=%d",
					existing.PulsarID, pulsarID),
			}
		}
		s.logger.Debug("template deduplicated", "checksum", checksum, "id", existing.ID)
		return existing.ID, nil
	}

	key := path.Join(strings.ToUpper(pulsar.Alias), "template", filepath.Base(srcPath))
	if err := s.archiveFile(key, checksum, srcPath); err != nil {
		return 0, fmt.Errorf("archiving template: %w", err)
	}

	id, err := s.database.CreateTemplate(ctx, &model.Template{
		PulsarID:  pulsarID,
		FilePath:  key,
		Checksum:  checksum,
		CreatedAt: s.clock.Now(),
	})
	if err != nil {
		return 0, fmt.Errorf("recording template: %w", err)
	}

	s.logger.Info("template added", "pulsar", pulsar.Alias, "id", id)
	return id, nil
}

// SetMasterEphemeris switches the pulsar's preferred ephemeris version.
func (s *ArchiveService) SetMasterEphemeris(ctx context.Context, pulsarID, ephemerisID int64) error {
	if err := s.database.SetMasterEphemeris(ctx, pulsarID, ephemerisID); err != nil {
		return err
	}
	s.logger.Info("master ephemeris set", "pulsar_id", pulsarID, "ephemeris_id", ephemerisID)
	return nil
}

// AddUser registers an operator account with a bcrypt-hashed password.
func (s *ArchiveService) AddUser(ctx context.Context, u *model.User, password string) (int64, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return 0, fmt.Errorf("hashing password: %w", err)
	}

	u.CreatedAt = s.clock.Now()
	id, err := s.database.CreateUser(ctx, u, string(hash))
	if err != nil {
		return 0, fmt.Errorf("adding user: %w", err)
	}

	s.logger.Info("user added", "username", u.Username, "id", id)
	return id, nil
}

// IngestRequest identifies a raw observation file to admit.
type IngestRequest struct {
	Path        string
	PulsarName  string // alias or J name of the source
	ObsSystemID int64
}

// IngestResult reports the outcome of an ingestion.
type IngestResult struct {
	RawID        int64
	Checksum     string
	ArchiveKey   string // empty when the file was not archived
	Deduplicated bool   // content was already known; RawID is the existing row
}

// IngestRawFile admits one raw observation file. Identity is the
// content checksum: known content either resolves to the existing row
// (auto-resolve) or is rejected. Unknown pulsars are registered on the
// fly when AutoAddPulsars is set.
func (s *ArchiveService) IngestRawFile(ctx context.Context, req IngestRequest) (*IngestResult, error) {
	checksum, err := ComputeChecksum(req.Path)
	if err != nil {
		return nil, err
	}

	existing, err := s.database.FindRawFileByChecksum(ctx, checksum)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return s.resolveDuplicateUpload(ctx, req, existing, checksum)
	}

	pulsar, err := s.resolvePulsar(ctx, req.PulsarName)
	if err != nil {
		return nil, err
	}

	obs, err := s.database.GetObsSystem(ctx, req.ObsSystemID)
	if err != nil {
		return nil, err
	}
	telescope, err := s.database.GetTelescope(ctx, obs.TelescopeID)
	if err != nil {
		return nil, err
	}

	filePath := req.Path
	archiveKey := ""
	if s.opts.ArchiveRawFiles {
		archiveKey = path.Join(strings.ToUpper(pulsar.Alias),
			telescope.Name, obs.Frontend, obs.Backend, filepath.Base(req.Path))
		if err := s.archiveFile(archiveKey, checksum, req.Path); err != nil {
			return nil, fmt.Errorf("archiving raw file: %w", err)
		}
		filePath = archiveKey
	}

	rawID, err := s.database.CreateRawFile(ctx, &model.RawFile{
		FilePath:   filePath,
		Checksum:   checksum,
		PulsarID:   pulsar.ID,
		ObserverID: obs.ID,
		CreatedAt:  s.clock.Now(),
	})
	if err != nil {
		// A concurrent ingest of the same content may have won the race.
		if dup, ok := err.(*DuplicateEntryError); ok && s.opts.AutoResolveDuplicates {
			s.logger.Debug("raw file deduplicated", "checksum", checksum, "id", dup.ID)
			return &IngestResult{RawID: dup.ID, Checksum: checksum, Deduplicated: true}, nil
		}
		return nil, fmt.Errorf("recording raw file: %w", err)
	}

	if s.opts.ArchiveRawFiles && s.opts.MoveRawFiles {
		if err := os.Remove(req.Path); err != nil {
			s.logger.Warn("could not remove source after archive", "path", req.Path, "error", err)
		}
	}

	s.logger.Info("raw file ingested", "pulsar", pulsar.Alias, "id", rawID, "checksum", checksum)
	return &IngestResult{RawID: rawID, Checksum: checksum, ArchiveKey: archiveKey}, nil
}

// resolveDuplicateUpload handles re-ingestion of content the archive
// already holds. The pulsar hint, when given, must agree with the row
// on record; a mismatch means the caller's metadata is wrong and is
// never silently resolved.
func (s *ArchiveService) resolveDuplicateUpload(ctx context.Context, req IngestRequest, existing *model.RawFile, checksum string) (*IngestResult, error) {
	if req.PulsarName != "" {
		hinted, err := s.database.FindPulsar(ctx, req.PulsarName)
		if err != nil {
			return nil, err
		}
		if hinted != nil && hinted.ID != existing.PulsarID {
			return nil, &ConsistencyError{
				Detail: fmt.Sprintf("content %s is recorded for pulsar id=%d but was uploaded as %q",
					checksum, existing.PulsarID, req.PulsarName),
			}
		}
	}

	if !s.opts.AutoResolveDuplicates {
		return nil, &DuplicateEntryError{Table: "raw_files", ID: existing.ID}
	}

	s.logger.Debug("raw file deduplicated", "checksum", checksum, "id", existing.ID)
	return &IngestResult{RawID: existing.ID, Checksum: checksum, Deduplicated: true}, nil
}

// resolvePulsar finds the pulsar by alias or J name, registering it
// when unknown and AutoAddPulsars is set.
func (s *ArchiveService) resolvePulsar(ctx context.Context, name string) (*model.Pulsar, error) {
	if name == "" {
		return nil, &NotFoundError{Table: "pulsars", Key: "(no source name)"}
	}

	pulsar, err := s.database.FindPulsar(ctx, name)
	if err != nil {
		return nil, err
	}
	if pulsar != nil {
		return pulsar, nil
	}

	if !s.opts.AutoAddPulsars {
		return nil, &NotFoundError{Table: "pulsars", Key: name}
	}

	id, err := s.database.CreatePulsar(ctx, &model.Pulsar{Alias: name})
	if err != nil {
		return nil, fmt.Errorf("auto-adding pulsar %q: %w", name, err)
	}
	s.logger.Info("pulsar auto-added", "alias", name, "id", id)
	return s.database.GetPulsar(ctx, id)
}

// archiveFile copies srcPath into storage under key, verifying the
// written bytes against the checksum.
func (s *ArchiveService) archiveFile(key, checksum, srcPath string) error {
	f, err := os.Open(srcPath)
	if err != nil {
		return fmt.Errorf("opening %s: %w", srcPath, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stating %s: %w", srcPath, err)
	}

	location, err := s.storage.Put(key, checksum, f, info.Size())
	if err != nil {
		return err
	}

	s.logger.Debug("file archived", "key", key, "location", location)
	return nil
}
