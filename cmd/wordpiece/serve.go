package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/example/go-wordpiece/internal/server"
)

func newServeCmd() *cobra.Command {
	var artifact string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the tokenization HTTP server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}
			if err := cfg.ValidateServer(); err != nil {
				return err
			}

			loaded, err := loadArtifact(cfg, artifact)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return server.New(cfg, loaded).Start(ctx)
		},
	}

	cmd.Flags().StringVar(&artifact, "artifact", "", "Artifact directory or vocabulary file (overrides --paths-artifact-dir)")

	return cmd
}
