package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/phobologic/railscope/internal/watch"
)

func newWatchCmd(opts *options) *cobra.Command {
	var debounce time.Duration

	cmd := &cobra.Command{
		Use:   "watch [root]",
		Short: "Re-run the analysis whenever sources, views or routes change",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := resolveRoot(args)
			if err != nil {
				return err
			}
			cfg, logger, err := setup(cmd, opts, root)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			out := cmd.OutOrStdout()
			rerun := func() {
				// Reload so that config edits apply without a restart.
				current, _, err := setup(cmd, opts, root)
				if err != nil {
					logger.Error("loading config", "error", err)
					return
				}
				am, err := analyze(ctx, root, current, opts, logger)
				if err != nil {
					logger.Error("analysis failed", "error", err)
					return
				}
				if err := render(out, am, current, opts); err != nil {
					logger.Error("rendering report", "error", err)
				}
			}
			rerun()

			dirs := append([]string{}, cfg.Sources.Dirs...)
			if cfg.Sources.Views != "" {
				dirs = append(dirs, cfg.Sources.Views)
			}
			files := []string{defaultConfigName()}
			if cfg.Sources.Routes != "" {
				files = append(files, cfg.Sources.Routes)
			}

			return watch.Run(ctx, watch.Options{
				Root:     root,
				Dirs:     dirs,
				Files:    files,
				Debounce: debounce,
				Logger:   logger,
			}, func(changed []string) {
				logger.Info("sources changed", "files", changed)
				rerun()
			})
		},
	}

	cmd.Flags().DurationVar(&debounce, "debounce", watch.DefaultDebounce, "wait this long after the last change before re-running")
	return cmd
}
