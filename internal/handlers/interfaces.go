package handlers

import (
	"context"

	"github.com/johnmaccormick/mirDB/internal/catalog"
	"github.com/johnmaccormick/mirDB/internal/session"
)

// Browsers resolves the per-visitor auth state for a cookie identifier.
type Browsers interface {
	Get(ctx context.Context, id string) *session.Browser
}

// Catalog loads the list pages.
type Catalog interface {
	Characters(ctx context.Context) catalog.View[catalog.Character]
	Chapters(ctx context.Context) catalog.View[catalog.Chapter]
}
