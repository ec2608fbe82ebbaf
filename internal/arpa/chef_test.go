package arpa_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"arpa-go/internal/arpa"
	"arpa-go/internal/model"
	"arpa-go/internal/storage"
	"arpa-go/internal/testutil"
)

// fixture wires a chef over an in-memory database and archive with
// everything one cook needs already registered.
type fixture struct {
	db     arpa.Database
	store  *storage.MemoryStorage
	fitter *testutil.StubFitter
	clock  *testutil.StubClock
	chef   *arpa.Chef

	pulsarID   int64
	obsID      int64
	parID      int64
	templateID int64
	rawID      int64
	userID     int64
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	f := &fixture{
		db:     testutil.NewTestDatabase(t),
		store:  storage.NewMemoryStorage(),
		fitter: testutil.NewStubFitter(),
		clock:  testutil.FixedClock(),
	}
	f.chef = arpa.NewChef(f.db, f.store, f.fitter, arpa.NewNopLogger(), f.clock)

	telescopeID, err := f.db.CreateTelescope(ctx, &model.Telescope{
		Name: "parkes", Abbreviation: "pks", Code: "7",
	})
	if err != nil {
		t.Fatalf("CreateTelescope() error = %v", err)
	}
	f.obsID, err = f.db.CreateObsSystem(ctx, &model.ObsSystem{
		Name: "pks-mb-cpsr2", TelescopeID: telescopeID,
		Frontend: "MULTI", Backend: "CPSR2", Clock: "pks2gps.clk", Code: "m2",
	})
	if err != nil {
		t.Fatalf("CreateObsSystem() error = %v", err)
	}
	f.pulsarID, err = f.db.CreatePulsar(ctx, &model.Pulsar{Alias: "0437"})
	if err != nil {
		t.Fatalf("CreatePulsar() error = %v", err)
	}

	f.parID = f.addPar(t, "0437/par/v1.par", "PSRJ J0437-4715\nF0 173.687\n")
	if err := f.db.SetMasterEphemeris(ctx, f.pulsarID, f.parID); err != nil {
		t.Fatalf("SetMasterEphemeris() error = %v", err)
	}

	f.templateID = f.putTemplate(t, "0437/template/std.sm", "template bytes")
	f.rawID = f.putRaw(t, "0437/parkes/MULTI/CPSR2/obs1.cf", "raw observation bytes")

	f.userID, err = f.db.CreateUser(ctx, &model.User{
		Username: "observer", RealName: "Test Observer", Email: "obs@example.org",
		CreatedAt: f.clock.Now(),
	}, "hash")
	if err != nil {
		t.Fatalf("CreateUser() error = %v", err)
	}

	return f
}

// putObject archives content under key and returns its checksum.
func (f *fixture) putObject(t *testing.T, key, content string) string {
	t.Helper()
	checksum, err := arpa.ChecksumReader(strings.NewReader(content))
	if err != nil {
		t.Fatalf("ChecksumReader() error = %v", err)
	}
	if _, err := f.store.Put(key, checksum, strings.NewReader(content), int64(len(content))); err != nil {
		t.Fatalf("Put(%q) error = %v", key, err)
	}
	return checksum
}

func (f *fixture) addPar(t *testing.T, key, content string) int64 {
	t.Helper()
	checksum := f.putObject(t, key, content)
	id, err := f.db.CreateEphemeris(context.Background(), &model.Ephemeris{
		PulsarID: f.pulsarID, FilePath: key, Checksum: checksum, CreatedAt: f.clock.Now(),
	})
	if err != nil {
		t.Fatalf("CreateEphemeris() error = %v", err)
	}
	return id
}

func (f *fixture) putTemplate(t *testing.T, key, content string) int64 {
	t.Helper()
	checksum := f.putObject(t, key, content)
	id, err := f.db.CreateTemplate(context.Background(), &model.Template{
		PulsarID: f.pulsarID, FilePath: key, Checksum: checksum, CreatedAt: f.clock.Now(),
	})
	if err != nil {
		t.Fatalf("CreateTemplate() error = %v", err)
	}
	return id
}

func (f *fixture) putRaw(t *testing.T, key, content string) int64 {
	t.Helper()
	checksum := f.putObject(t, key, content)
	id, err := f.db.CreateRawFile(context.Background(), &model.RawFile{
		FilePath: key, Checksum: checksum, PulsarID: f.pulsarID, ObserverID: f.obsID,
		CreatedAt: f.clock.Now(),
	})
	if err != nil {
		t.Fatalf("CreateRawFile() error = %v", err)
	}
	return id
}

func (f *fixture) cookRequest() arpa.CookRequest {
	return arpa.CookRequest{
		RawID:      f.rawID,
		TemplateID: f.templateID,
		Method:     "FDM",
		NChannels:  4,
		NSubints:   1,
		UserID:     f.userID,
	}
}

func TestChef_Cook(t *testing.T) {
	ctx := context.Background()

	t.Run("completed run records process and TOA batch", func(t *testing.T) {
		f := newFixture(t)

		result, err := f.chef.Cook(ctx, f.cookRequest())
		if err != nil {
			t.Fatalf("Cook() error = %v", err)
		}
		if result.State != arpa.StateCompleted {
			t.Fatalf("state = %s, want %s", result.State, arpa.StateCompleted)
		}
		if len(result.TOAIDs) != 2 {
			t.Errorf("got %d toa ids, want 2", len(result.TOAIDs))
		}

		process, err := f.db.GetProcess(ctx, result.ProcessID)
		if err != nil {
			t.Fatalf("GetProcess() error = %v", err)
		}
		if process.EphemerisID == nil || *process.EphemerisID != f.parID {
			t.Errorf("process ephemeris = %v, want master id %d", process.EphemerisID, f.parID)
		}

		toas, err := f.db.ToasForPulsar(ctx, f.pulsarID, nil, nil)
		if err != nil {
			t.Fatalf("ToasForPulsar() error = %v", err)
		}
		for _, toa := range toas {
			if toa.PulsarID != f.pulsarID || toa.ObserverID != f.obsID || toa.RawID != f.rawID {
				t.Errorf("toa provenance = %+v, want raw file's pulsar/observer", toa)
			}
		}
	})

	t.Run("fit sees materialized input files", func(t *testing.T) {
		f := newFixture(t)

		if _, err := f.chef.Cook(ctx, f.cookRequest()); err != nil {
			t.Fatalf("Cook() error = %v", err)
		}

		requests := f.fitter.Requests()
		if len(requests) != 1 {
			t.Fatalf("got %d fit requests, want 1", len(requests))
		}
		req := requests[0]
		if req.Method != "FDM" || req.NChannels != 4 || req.NSubints != 1 {
			t.Errorf("fit parameters = %+v", req)
		}
		if req.RawPath == "" || req.EphemerisPath == "" || req.TemplatePath == "" {
			t.Errorf("fit request has empty input path: %+v", req)
		}
	})

	t.Run("identical rerun short-circuits before the fit", func(t *testing.T) {
		f := newFixture(t)

		first, err := f.chef.Cook(ctx, f.cookRequest())
		if err != nil {
			t.Fatalf("first Cook() error = %v", err)
		}

		second, err := f.chef.Cook(ctx, f.cookRequest())
		if err != nil {
			t.Fatalf("second Cook() error = %v", err)
		}
		if second.State != arpa.StateDeduplicated || !second.Deduplicated {
			t.Fatalf("second cook state = %s, want %s", second.State, arpa.StateDeduplicated)
		}
		if second.ProcessID != first.ProcessID {
			t.Errorf("dedup points at process %d, want %d", second.ProcessID, first.ProcessID)
		}
		if got := len(f.fitter.Requests()); got != 1 {
			t.Errorf("fitter ran %d times, want 1 (dedup must skip the fit)", got)
		}
	})

	t.Run("force reruns the fit and records a second row", func(t *testing.T) {
		f := newFixture(t)

		first, err := f.chef.Cook(ctx, f.cookRequest())
		if err != nil {
			t.Fatalf("first Cook() error = %v", err)
		}

		req := f.cookRequest()
		req.Force = true
		second, err := f.chef.Cook(ctx, req)
		if err != nil {
			t.Fatalf("forced Cook() error = %v", err)
		}
		if second.State != arpa.StateCompleted {
			t.Fatalf("forced cook state = %s, want %s", second.State, arpa.StateCompleted)
		}
		if second.ProcessID == first.ProcessID {
			t.Errorf("forced rerun reused process %d", first.ProcessID)
		}
		if got := len(f.fitter.Requests()); got != 2 {
			t.Errorf("fitter ran %d times, want 2", got)
		}
	})

	t.Run("explicit par version changes the run identity", func(t *testing.T) {
		f := newFixture(t)

		if _, err := f.chef.Cook(ctx, f.cookRequest()); err != nil {
			t.Fatalf("master cook error = %v", err)
		}

		v2 := f.addPar(t, "0437/par/v2.par", "PSRJ J0437-4715\nF0 173.688\n")
		req := f.cookRequest()
		req.EphemerisID = &v2

		result, err := f.chef.Cook(ctx, req)
		if err != nil {
			t.Fatalf("Cook() with explicit par error = %v", err)
		}
		if result.State != arpa.StateCompleted {
			t.Fatalf("state = %s, want %s (new par, not a duplicate)", result.State, arpa.StateCompleted)
		}
	})

	t.Run("master redesignation makes the next cook a fresh run", func(t *testing.T) {
		f := newFixture(t)

		if _, err := f.chef.Cook(ctx, f.cookRequest()); err != nil {
			t.Fatalf("first Cook() error = %v", err)
		}

		v2 := f.addPar(t, "0437/par/v2.par", "PSRJ J0437-4715\nF0 173.688\n")
		if err := f.db.SetMasterEphemeris(ctx, f.pulsarID, v2); err != nil {
			t.Fatalf("SetMasterEphemeris() error = %v", err)
		}

		result, err := f.chef.Cook(ctx, f.cookRequest())
		if err != nil {
			t.Fatalf("Cook() after redesignation error = %v", err)
		}
		if result.State != arpa.StateCompleted {
			t.Fatalf("state = %s, want %s (new master changes the inputs)",
				result.State, arpa.StateCompleted)
		}
	})

	t.Run("no master and no explicit par is rejected", func(t *testing.T) {
		f := newFixture(t)

		// A second pulsar with a raw file and template but no par.
		bareID, err := f.db.CreatePulsar(ctx, &model.Pulsar{Alias: "1909"})
		if err != nil {
			t.Fatalf("CreatePulsar() error = %v", err)
		}
		checksum := f.putObject(t, "1909/parkes/MULTI/CPSR2/obs.cf", "other raw bytes")
		rawID, err := f.db.CreateRawFile(ctx, &model.RawFile{
			FilePath: "1909/parkes/MULTI/CPSR2/obs.cf", Checksum: checksum,
			PulsarID: bareID, ObserverID: f.obsID, CreatedAt: f.clock.Now(),
		})
		if err != nil {
			t.Fatalf("CreateRawFile() error = %v", err)
		}
		tmplChecksum := f.putObject(t, "1909/template/std.sm", "other template")
		tmplID, err := f.db.CreateTemplate(ctx, &model.Template{
			PulsarID: bareID, FilePath: "1909/template/std.sm", Checksum: tmplChecksum,
			CreatedAt: f.clock.Now(),
		})
		if err != nil {
			t.Fatalf("CreateTemplate() error = %v", err)
		}

		req := f.cookRequest()
		req.RawID = rawID
		req.TemplateID = tmplID

		result, err := f.chef.Cook(ctx, req)
		var noPar *arpa.NoEphemerisError
		if !errors.As(err, &noPar) {
			t.Fatalf("Cook() error = %v, want NoEphemerisError", err)
		}
		if result.State != arpa.StateRejected {
			t.Errorf("state = %s, want %s", result.State, arpa.StateRejected)
		}
	})

	t.Run("template of another pulsar is rejected", func(t *testing.T) {
		f := newFixture(t)

		otherID, err := f.db.CreatePulsar(ctx, &model.Pulsar{Alias: "1909"})
		if err != nil {
			t.Fatalf("CreatePulsar() error = %v", err)
		}
		checksum := f.putObject(t, "1909/template/std.sm", "other template")
		wrongTemplate, err := f.db.CreateTemplate(ctx, &model.Template{
			PulsarID: otherID, FilePath: "1909/template/std.sm", Checksum: checksum,
			CreatedAt: f.clock.Now(),
		})
		if err != nil {
			t.Fatalf("CreateTemplate() error = %v", err)
		}

		req := f.cookRequest()
		req.TemplateID = wrongTemplate

		result, err := f.chef.Cook(ctx, req)
		var ce *arpa.ConsistencyError
		if !errors.As(err, &ce) {
			t.Fatalf("Cook() error = %v, want ConsistencyError", err)
		}
		if result.State != arpa.StateRejected {
			t.Errorf("state = %s, want %s", result.State, arpa.StateRejected)
		}
		if got := len(f.fitter.Requests()); got != 0 {
			t.Errorf("fitter ran %d times on rejected input, want 0", got)
		}
	})

	t.Run("failed fit writes nothing", func(t *testing.T) {
		f := newFixture(t)
		f.fitter.Fail("no profile detected")

		result, err := f.chef.Cook(ctx, f.cookRequest())
		var fe *arpa.FitError
		if !errors.As(err, &fe) {
			t.Fatalf("Cook() error = %v, want FitError", err)
		}
		if result.State != arpa.StateFitFailed {
			t.Errorf("state = %s, want %s", result.State, arpa.StateFitFailed)
		}

		processes, err := f.db.ProcessesForRawFile(ctx, f.rawID)
		if err != nil {
			t.Fatalf("ProcessesForRawFile() error = %v", err)
		}
		if len(processes) != 0 {
			t.Errorf("got %d processes after failed fit, want 0", len(processes))
		}
	})
}
