package core

import (
	do "github.com/samber/do/v2"

	"github.com/canton7/gitlab-mr-viewer/internal/core/app"
)

var Package = do.Package(
	do.Lazy[*app.Client](NewClient),
)

// NewClient creates the poll client (for DI).
func NewClient(_ do.Injector) (*app.Client, error) {
	return app.NewClient(), nil
}
