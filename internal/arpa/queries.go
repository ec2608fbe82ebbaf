package arpa

import (
	"context"
	"fmt"
	"io"
	"path"
	"strconv"

	"arpa-go/internal/model"
)

// Read-side operations. These live on ArchiveService so the CLI has a
// single entry point, but they never write.

// PulsarByName resolves a pulsar by alias or J name, failing with
// NotFoundError when unknown.
func (s *ArchiveService) PulsarByName(ctx context.Context, name string) (*model.Pulsar, error) {
	p, err := s.database.FindPulsar(ctx, name)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, &NotFoundError{Table: "pulsars", Key: name}
	}
	return p, nil
}

// EphemerisHistory lists every par version for a pulsar in creation
// order, together with which one is the current master.
func (s *ArchiveService) EphemerisHistory(ctx context.Context, pulsarID int64) ([]*model.Ephemeris, *int64, error) {
	pulsar, err := s.database.GetPulsar(ctx, pulsarID)
	if err != nil {
		return nil, nil, err
	}
	history, err := s.database.EphemerisHistory(ctx, pulsarID)
	if err != nil {
		return nil, nil, err
	}
	return history, pulsar.MasterEphemerisID, nil
}

// ProcessesForRawFile lists every recorded run over a raw file,
// oldest first.
func (s *ArchiveService) ProcessesForRawFile(ctx context.Context, rawID int64) ([]*model.Process, error) {
	if _, err := s.database.GetRawFile(ctx, rawID); err != nil {
		return nil, err
	}
	return s.database.ProcessesForRawFile(ctx, rawID)
}

// ToasForPulsar returns the pulsar's TOAs, optionally bounded to the
// MJD interval [from, to], ordered by arrival time.
func (s *ArchiveService) ToasForPulsar(ctx context.Context, pulsarID int64, from, to *float64) ([]*model.TOA, error) {
	if _, err := s.database.GetPulsar(ctx, pulsarID); err != nil {
		return nil, err
	}
	return s.database.ToasForPulsar(ctx, pulsarID, from, to)
}

// WriteTim writes the pulsar's TOAs as a tempo2-format tim file:
// a "FORMAT 1" header, then one line per TOA of
//
//	<file> <freq MHz> <MJD> <uncertainty us> <site>
//
// The MJD keeps the split integer and fractional parts, so no
// precision is lost to a float64 round trip.
func (s *ArchiveService) WriteTim(ctx context.Context, w io.Writer, pulsarID int64, from, to *float64) (int, error) {
	toas, err := s.ToasForPulsar(ctx, pulsarID, from, to)
	if err != nil {
		return 0, err
	}

	if _, err := fmt.Fprintln(w, "FORMAT 1"); err != nil {
		return 0, err
	}

	// Raw file names and telescope codes repeat across TOAs from the
	// same observation, so resolve each id once.
	rawNames := make(map[int64]string)
	siteCodes := make(map[int64]string)

	for i, t := range toas {
		name, ok := rawNames[t.RawID]
		if !ok {
			raw, err := s.database.GetRawFile(ctx, t.RawID)
			if err != nil {
				return i, err
			}
			name = path.Base(raw.FilePath)
			rawNames[t.RawID] = name
		}

		site, ok := siteCodes[t.ObserverID]
		if !ok {
			obs, err := s.database.GetObsSystem(ctx, t.ObserverID)
			if err != nil {
				return i, err
			}
			telescope, err := s.database.GetTelescope(ctx, obs.TelescopeID)
			if err != nil {
				return i, err
			}
			site = telescope.Code
			siteCodes[t.ObserverID] = site
		}

		if _, err := fmt.Fprintf(w, "%s %.6f %s %.4f %s\n",
			name, t.Frequency, FormatMJD(t.MJDInt, t.MJDFrac), t.Uncertainty, site); err != nil {
			return i, err
		}
	}

	return len(toas), nil
}

// FormatMJD renders a split arrival time as a single decimal string
// with thirteen fractional digits.
func FormatMJD(mjdInt int, mjdFrac float64) string {
	frac := strconv.FormatFloat(mjdFrac, 'f', 13, 64)
	// Rounding the fraction to thirteen digits can carry into the next
	// day, turning "0.9999..." into "1.0000000000000".
	if frac[0] == '1' {
		mjdInt++
	}
	// Keep only the point and digits.
	return strconv.Itoa(mjdInt) + frac[1:]
}
