package booking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
)

const snapshotVersion = 1

type snapshot struct {
	Version    int        `json:"version"`
	ExportedAt time.Time  `json:"exported_at"`
	Bookings   []*Booking `json:"bookings"`
}

// WriteSnapshot serialises the bookings collection as JSON.
func WriteSnapshot(w io.Writer, bookings []*Booking, at time.Time) error {
	if bookings == nil {
		bookings = []*Booking{}
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	if err := enc.Encode(snapshot{Version: snapshotVersion, ExportedAt: at.UTC(), Bookings: bookings}); err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}

	return nil
}

// ReadSnapshot loads a collection written by WriteSnapshot. Unknown fields are
// rejected so a mismatched file fails loudly instead of dropping data.
func ReadSnapshot(r io.Reader) ([]*Booking, error) {
	snap, err := readSnapshot(r)
	if err != nil {
		return nil, err
	}

	return snap.Bookings, nil
}

func readSnapshot(r io.Reader) (*snapshot, error) {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()

	var snap snapshot
	if err := dec.Decode(&snap); err != nil {
		return nil, fmt.Errorf("%w: decoding: %w", ErrInvalidSnapshot, err)
	}

	if snap.Version != snapshotVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrInvalidSnapshot, snap.Version)
	}

	seen := make(map[uuid.UUID]struct{}, len(snap.Bookings))

	for i, b := range snap.Bookings {
		if b == nil {
			return nil, fmt.Errorf("%w: empty booking at index %d", ErrInvalidSnapshot, i)
		}

		if _, ok := seen[b.ID]; ok {
			return nil, fmt.Errorf("%w: duplicate booking %s", ErrInvalidSnapshot, b.ID)
		}

		seen[b.ID] = struct{}{}
	}

	return &snap, nil
}

// SnapshotReport compares a snapshot file with the bookings currently stored.
type SnapshotReport struct {
	ExportedAt time.Time `json:"exported_at"`
	Bookings   int       `json:"bookings"`
	Missing    []string  `json:"missing"`
	Changed    []string  `json:"changed"`
}

// VerifySnapshot reads a snapshot and lists, by booking reference, the
// bookings no longer stored and those whose status has moved on since the
// export.
func (s *Service) VerifySnapshot(ctx context.Context, r io.Reader) (*SnapshotReport, error) {
	snap, err := readSnapshot(r)
	if err != nil {
		return nil, err
	}

	report := &SnapshotReport{
		ExportedAt: snap.ExportedAt,
		Bookings:   len(snap.Bookings),
		Missing:    []string{},
		Changed:    []string{},
	}

	for _, b := range snap.Bookings {
		stored, err := s.repo.GetBooking(ctx, b.ID)
		if errors.Is(err, ErrNotFound) {
			report.Missing = append(report.Missing, b.Ref)
			continue
		}

		if err != nil {
			return nil, fmt.Errorf("getting booking %s: %w", b.Ref, err)
		}

		if stored.Status != b.Status || stored.Payment.Status != b.Payment.Status {
			report.Changed = append(report.Changed, b.Ref)
		}
	}

	return report, nil
}

// Snapshot writes every booking matching filter.
func (s *Service) Snapshot(ctx context.Context, w io.Writer, filter ListFilter) (int, error) {
	bookings, err := s.repo.ListBookings(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("listing bookings: %w", err)
	}

	if err := WriteSnapshot(w, bookings, s.now()); err != nil {
		return 0, err
	}

	return len(bookings), nil
}
