package adapters

import (
	do "github.com/samber/do/v2"
	"github.com/spf13/cobra"

	"github.com/canton7/gitlab-mr-viewer/internal/adapters/primary/cli"
	"github.com/canton7/gitlab-mr-viewer/internal/adapters/secondary/connect"
)

var PrimaryPackage = do.Package(
	do.Lazy[*cobra.Command](cli.Command),
)

var SecondaryPackage = do.Package(
	connect.Package,
)
