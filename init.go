package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/phobologic/railscope/internal/config"
)

// newInitCmd implements `railscope init`, which writes a config file with
// every key spelled out. An existing file is updated in place: its values
// are kept and missing keys are filled with defaults.
func newInitCmd() *cobra.Command {
	var dryRun, force bool

	cmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Write or update a railscope config file",
		Long: `Write a railscope config file listing every setting with its default.

path defaults to ./.railscope.yaml. A directory writes .railscope.yaml inside
it; a .toml extension writes TOML. When the file exists its values are kept
and only missing keys are added, unless --force resets it to the defaults.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := defaultConfigName()
			if len(args) > 0 {
				path = args[0]
				if info, err := os.Stat(path); err == nil && info.IsDir() {
					path = filepath.Join(path, defaultConfigName())
				}
			}

			cfg, updated, err := initialConfig(path, force)
			if err != nil {
				return err
			}
			data, err := config.Marshal(cfg, config.FormatFor(path))
			if err != nil {
				return err
			}

			if dryRun {
				_, _ = cmd.OutOrStdout().Write(data)
				return nil
			}
			if err := os.WriteFile(path, data, 0o644); err != nil {
				return fmt.Errorf("writing %s: %w", path, err)
			}

			verb := "wrote"
			if updated {
				verb = "updated"
			}
			_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "%s %s\n", verb, path)
			return nil
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "print what would be written without modifying the file")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file with the defaults")
	return cmd
}

func defaultConfigName() string {
	return config.DefaultConfigFile + "." + config.DefaultConfigType
}

// initialConfig returns the defaults, or the merged contents of an existing
// file at path. updated reports whether an existing file was read.
func initialConfig(path string, force bool) (cfg *config.Config, updated bool, err error) {
	if force {
		return config.Default(), false, nil
	}
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return config.Default(), false, nil
	}

	cfg, err = config.Load(filepath.Dir(path), path)
	if err != nil {
		return nil, false, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, false, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, true, nil
}
