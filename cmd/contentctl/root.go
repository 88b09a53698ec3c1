package main

import (
	"flag"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/onterra/onterra-web/internal/cfg"
	"github.com/onterra/onterra-web/internal/log"
	v "github.com/onterra/onterra-web/internal/version"
)

// app carries the shared configuration between subcommands.
type app struct {
	conf cfg.App
	gfs  *flag.FlagSet
	L    log.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{gfs: flag.NewFlagSet("contentctl", flag.ContinueOnError)}
	cfg.Register(a.gfs, &a.conf)

	root := &cobra.Command{
		Use:           "contentctl",
		Short:         "Operate the onterra content layer",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init(cmd)
		},
	}
	// server flags and ONTERRA_* env vars mean the same thing here
	root.PersistentFlags().AddGoFlagSet(a.gfs)

	root.AddCommand(
		registryCmd(a),
		resolveCmd(a),
		verifyCmd(a),
		composeCmd(a),
		revalidateCmd(a),
		versionCmd(),
	)
	return root
}

// init syncs cobra-parsed flags back into the go FlagSet so FillFromEnv
// sees which ones were explicit, then builds the logger.
func (a *app) init(cmd *cobra.Command) error {
	var setErr error
	a.gfs.VisitAll(func(f *flag.Flag) {
		if cmd.Flags().Changed(f.Name) && setErr == nil {
			setErr = a.gfs.Set(f.Name, f.Value.String())
		}
	})
	if setErr != nil {
		return setErr
	}
	cfg.FillFromEnv(a.gfs, cfg.EnvPrefix, func(format string, args ...any) {
		fmt.Fprintf(cmd.ErrOrStderr(), format+"\n", args...)
	})

	lvl, err := log.ParseLevel(a.conf.LogLevel)
	if err != nil {
		lvl = slog.LevelInfo
	}
	vi := v.Get()
	L, err := log.New(log.Options{
		App:       v.AppName,
		Component: "contentctl",
		Version:   vi.Version,
		Commit:    vi.Commit,
		Level:     lvl,
		// errors are returned to cobra; no stacks on a terminal
		StackLevel: slog.LevelError + 1,
		Writer:     cmd.ErrOrStderr(),
	})
	if err != nil {
		return err
	}
	a.L = L
	cmd.SetContext(log.WithContext(cmd.Context(), L))
	return nil
}

func versionCmd() *cobra.Command {
	var asJSON bool
	c := &cobra.Command{
		Use:   "version",
		Short: "Print version and build information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			vi := v.Get()
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), vi)
			}
			_, err := fmt.Fprintln(cmd.OutOrStdout(), vi.String())
			return err
		},
	}
	c.Flags().BoolVar(&asJSON, "json", false, "print as JSON")
	return c
}
