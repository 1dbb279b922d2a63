package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/octscan/octscan/internal/domain/clinic"
	"github.com/octscan/octscan/internal/domain/roles"
	"github.com/octscan/octscan/internal/platform/devserver"
)

func (c *cli) statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show dashboard figures",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			sess, err := c.authorize(ctx, roles.ViewPatients)
			if err != nil {
				return err
			}
			st, err := c.store(ctx, sess)
			if err != nil {
				return err
			}
			s := clinic.ComputeStats(st.Snapshot(), st.History().Records())
			fmt.Fprintf(c.out, "Patients:            %d\n", s.TotalPatients)
			fmt.Fprintf(c.out, "Days saved:          %d\n", s.TotalDaysSaved)
			fmt.Fprintf(c.out, "Assessments:         %d (%d confirmed)\n", s.TotalAssessments, s.CorrectAssessments)
			fmt.Fprintf(c.out, "Assessment accuracy: %.1f%%\n", s.AssessmentAccuracy)
			return nil
		},
	}
}

// predictCmd is the standalone upload portal: it posts one image to the
// inference endpoint and prints the answer. No session is needed.
func (c *cli) predictCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "predict <image>",
		Short: "Classify an image without saving a scan",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if _, err := c.session(ctx); err != nil {
				return err
			}
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			res, err := c.gw.Predict(ctx, filepath.Base(args[0]), f)
			if err != nil {
				return err
			}
			return c.printJSON(res)
		},
	}
}

// resolveSigningKey decodes DEV_SIGNING_KEY (hex). An empty value yields a
// nil key, which makes the server generate a random one.
func resolveSigningKey(envValue string) ([]byte, error) {
	if envValue == "" {
		return nil, nil
	}
	decoded, err := hex.DecodeString(envValue)
	if err != nil {
		return nil, fmt.Errorf("invalid DEV_SIGNING_KEY hex value: %w", err)
	}
	return decoded, nil
}

func (c *cli) devserverCmd() *cobra.Command {
	var port string
	cmd := &cobra.Command{
		Use:   "devserver",
		Short: "Run an in-memory backend for local development",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if port == "" {
				port = c.cfg.DevPort
			}
			key, err := resolveSigningKey(c.cfg.DevSigningKey)
			if err != nil {
				return err
			}
			srv := devserver.New(devserver.Config{
				SigningKey:  key,
				TokenTTL:    c.cfg.DevTokenTTL,
				CORSOrigins: c.cfg.CORSOrigins,
			}, c.logger)

			errCh := make(chan error, 1)
			go func() {
				errCh <- srv.Start(":" + port)
			}()

			quit := make(chan os.Signal, 1)
			signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
			defer signal.Stop(quit)

			select {
			case err := <-errCh:
				return err
			case <-quit:
			}

			c.logger.Info().Msg("shutting down dev backend")
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := srv.Shutdown(ctx); err != nil {
				return fmt.Errorf("server shutdown failed: %w", err)
			}
			c.logger.Info().Msg("dev backend stopped")
			return nil
		},
	}
	cmd.Flags().StringVar(&port, "port", "", "listen port (default DEV_PORT)")
	return cmd
}
