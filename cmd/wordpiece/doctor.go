package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/example/go-wordpiece/internal/doctor"
	"github.com/example/go-wordpiece/internal/server"
)

func newDoctorCmd() *cobra.Command {
	var probe bool

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Run artifact, corpus and server checks",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()

			dcfg := doctor.Config{
				ArtifactDir: cfg.Paths.ArtifactDir,
				Settings:    tokenizerOverrides(cfg),
				CorpusFiles: cfg.Paths.Corpus,
			}
			if cfg.IsSet("normalize") {
				policy := cfg.Normalize
				dcfg.Policy = &policy
			}
			if probe {
				addr := probeAddr(cfg.Server.ListenAddr)
				dcfg.ProbeAddr = addr
				dcfg.Probe = func() error {
					ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
					defer cancel()
					return server.ProbeHTTP(ctx, addr)
				}
			}

			result := doctor.Run(dcfg, out)

			if err := cfg.ValidateServer(); err != nil {
				result.AddFailure(fmt.Sprintf("server config: %v", err))
				_, _ = fmt.Fprintf(out, "%s server config: %v\n", doctor.FailMark, err)
			} else {
				_, _ = fmt.Fprintf(out, "%s server config: ok\n", doctor.PassMark)
			}

			if result.Failed() {
				for _, f := range result.Failures() {
					_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "FAIL: %s\n", f)
				}

				return errors.New("doctor checks failed")
			}

			_, _ = fmt.Fprintln(out, "doctor checks passed")

			return nil
		},
	}

	cmd.Flags().BoolVar(&probe, "probe", false, "Also probe the running server's /health endpoint")

	return cmd
}
