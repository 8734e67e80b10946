package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/tartampluch/go-hebrew-birthday/internal/config"
)

// cli carries the persistent flags and the log file shared by every subcommand.
type cli struct {
	configPath string
	debug      bool
	tenant     string

	out       io.Writer
	logCloser io.Closer
}

func (c *cli) newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           config.BinaryName,
		Short:         config.CmdShortRoot,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			if cmd.Name() == config.CmdUseVersion {
				return
			}
			c.logCloser = setupLogging(c.debug)
			logStartupInfo(cmd.Name())
		},
	}
	root.SetOut(c.out)
	root.PersistentFlags().StringVar(&c.configPath, config.FlagConfig, config.DefaultConfigPath, config.FlagDescConfig)
	root.PersistentFlags().BoolVar(&c.debug, config.FlagDebug, false, config.FlagDescDebug)

	importCmd := &cobra.Command{
		Use:   config.CmdUseImport,
		Short: config.CmdShortImport,
		Args:  cobra.ExactArgs(1),
		RunE:  c.runImport,
	}
	importCmd.Flags().StringVar(&c.tenant, config.FlagTenant, "", config.FlagDescTenant)

	root.AddCommand(
		&cobra.Command{Use: config.CmdUseServe, Short: config.CmdShortServe, Args: cobra.NoArgs, RunE: c.runServe},
		&cobra.Command{Use: config.CmdUseSweep, Short: config.CmdShortSweep, Args: cobra.NoArgs, RunE: c.runSweep},
		&cobra.Command{Use: config.CmdUseSync, Short: config.CmdShortSync, Args: cobra.ExactArgs(1), RunE: c.runSync},
		&cobra.Command{Use: config.CmdUseBackfill, Short: config.CmdShortBackfill, Args: cobra.NoArgs, RunE: c.runBackfill},
		importCmd,
		&cobra.Command{
			Use:   config.CmdUseVersion,
			Short: config.CmdShortVersion,
			Args:  cobra.NoArgs,
			Run: func(cmd *cobra.Command, _ []string) {
				printVersion(cmd.OutOrStdout())
			},
		},
	)
	return root
}

func (c *cli) closeLog() {
	if c.logCloser != nil {
		_ = c.logCloser.Close() // Best effort close
	}
}

// withApp loads the settings, wires the application and closes it after fn.
func (c *cli) withApp(fn func(app *application) error) error {
	settings, err := config.Load(c.configPath)
	if err != nil {
		return err
	}
	app, err := newApplication(settings)
	if err != nil {
		return err
	}
	defer func() {
		if err := app.Close(); err != nil {
			slog.Warn(config.ErrCloseDB, config.LogKeyComponent, config.CompMain, config.LogKeyError, err)
		}
	}()
	return fn(app)
}

// runServe runs the HTTP API and the sweep scheduler until the process is signalled.
// Either one failing stops the other.
func (c *cli) runServe(cmd *cobra.Command, _ []string) error {
	return c.withApp(func(app *application) error {
		srv, err := app.httpServer()
		if err != nil {
			return err
		}

		g, ctx := errgroup.WithContext(cmd.Context())
		g.Go(func() error { return srv.Start(ctx) })
		g.Go(func() error { return app.scheduler.Start(ctx) })

		if err := g.Wait(); err != nil {
			return err
		}
		slog.Info(config.MsgAppStop, config.LogKeyComponent, config.CompMain)
		return nil
	})
}

func (c *cli) runSweep(cmd *cobra.Command, _ []string) error {
	return c.withApp(func(app *application) error {
		updated, err := app.scheduler.RunOnce(cmd.Context())
		if err != nil {
			return err
		}
		color.New(color.FgGreen).Fprintf(cmd.OutOrStdout(), config.MsgCLISweepDone, updated)
		return nil
	})
}

func (c *cli) runSync(cmd *cobra.Command, args []string) error {
	return c.withApp(func(app *application) error {
		outcome, err := app.syncRecord(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		color.New(color.FgGreen).Fprintf(cmd.OutOrStdout(), config.MsgCLISyncDone, args[0], outcome)
		return nil
	})
}

func (c *cli) runBackfill(cmd *cobra.Command, _ []string) error {
	return c.withApp(func(app *application) error {
		updated, err := app.synchronizer.Backfill(cmd.Context())
		if err != nil {
			return err
		}
		color.New(color.FgGreen).Fprintf(cmd.OutOrStdout(), config.MsgCLIBackfillDone, updated)
		return nil
	})
}

func (c *cli) runImport(cmd *cobra.Command, args []string) error {
	if c.tenant == "" {
		return errors.New(config.ErrTenantRequired)
	}
	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("%s: %w", config.ErrOpenImport, err)
	}
	defer f.Close()

	return c.withApp(func(app *application) error {
		stats, err := app.importer.Import(cmd.Context(), f, c.tenant)
		if err != nil {
			return err
		}
		out := color.New(color.FgGreen)
		if stats.Failed > 0 {
			out = color.New(color.FgYellow)
		}
		out.Fprintf(cmd.OutOrStdout(), config.MsgCLIImportDone, stats.Imported, stats.Processed, stats.Skipped, stats.Failed)
		return nil
	})
}
