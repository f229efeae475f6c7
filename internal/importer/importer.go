package importer

import (
	"context"
	"io"

	"github.com/MrJamesThe3rd/medtrain/internal/catalogue"
)

type Importer interface {
	Parse(r io.Reader) ([]catalogue.SessionParams, error)
}

type SessionStore interface {
	ImportSessions(ctx context.Context, params []catalogue.SessionParams) ([]*catalogue.Session, error)
}
