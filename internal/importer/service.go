package importer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/MrJamesThe3rd/medtrain/internal/importer/schedule"
)

var (
	ErrEmpty       = errors.New("no sessions found in file")
	ErrInvalidFile = errors.New("parsing schedule")
)

// Result reports what an import parsed and, unless it was a dry run, saved.
type Result struct {
	Parsed int
	Saved  int
	DryRun bool
}

type Service struct {
	parser   Importer
	sessions SessionStore
}

// NewService reads schedules with times local to loc.
func NewService(sessions SessionStore, loc *time.Location) *Service {
	return &Service{
		parser:   schedule.NewParser(loc),
		sessions: sessions,
	}
}

// Import parses a schedule file and upserts its sessions. A dry run only
// parses, so admins can check a file before it touches the catalogue.
func (s *Service) Import(ctx context.Context, r io.Reader, dryRun bool) (*Result, error) {
	params, err := s.parser.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidFile, err)
	}

	if len(params) == 0 {
		return nil, ErrEmpty
	}

	res := &Result{Parsed: len(params), DryRun: dryRun}
	if dryRun {
		return res, nil
	}

	saved, err := s.sessions.ImportSessions(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("importing sessions: %w", err)
	}

	res.Saved = len(saved)

	return res, nil
}
