package main

import (
	"log"

	do "github.com/samber/do/v2"
	"github.com/spf13/cobra"

	"github.com/canton7/gitlab-mr-viewer/internal/adapters"
	"github.com/canton7/gitlab-mr-viewer/internal/config"
	"github.com/canton7/gitlab-mr-viewer/internal/core"
)

func main() {
	injector := do.New(
		config.Package,
		core.Package,
		adapters.SecondaryPackage,
		adapters.PrimaryPackage,
	)

	cmd, err := do.Invoke[*cobra.Command](injector)
	if err != nil {
		log.Fatalf("failed to create CLI command: %v", err)
	}

	if err := cmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
