// railscope maps the request parameters, headers and response fields of
// every endpoint in a Rails application.
package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/phobologic/railscope/internal/config"
	"github.com/phobologic/railscope/internal/discover"
	"github.com/phobologic/railscope/internal/model"
	"github.com/phobologic/railscope/internal/ranking"
	"github.com/phobologic/railscope/internal/report"
	"github.com/phobologic/railscope/internal/scan"
)

var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	cmd := newRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	return cmd.ExecuteContext(ctx)
}

// options holds flag values shared by the analysis commands. Only flags
// set on the command line override the config file.
type options struct {
	configFile  string
	routes      string
	format      string
	controller  string
	top         int
	workers     int
	maxFileSize int
	logLevel    string
	plain       bool
	cache       string
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:   "railscope [root]",
		Short: "Map the parameters, headers and responses of a Rails API",
		Long: `railscope statically analyzes a Rails application. For every route it
reports the request parameters and headers read by the action, its filters
and everything they call, along with the fields of the jbuilder response.

The route table is the saved output of ` + "`rails routes`" + ` (routes.txt by
default). Without one, every public controller method is reported.`,
		Version:       version,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := resolveRoot(args)
			if err != nil {
				return err
			}
			cfg, logger, err := setup(cmd, opts, root)
			if err != nil {
				return err
			}
			return runAnalyze(cmd.Context(), cmd.OutOrStdout(), root, cfg, opts, logger)
		},
	}
	cmd.SetVersionTemplate("railscope {{.Version}}\n")

	pf := cmd.PersistentFlags()
	pf.StringVar(&opts.configFile, "config", "", "config file (default: <root>/.railscope.yaml)")
	pf.StringVar(&opts.routes, "routes", "", "route table file, relative to root")
	pf.StringVarP(&opts.format, "format", "f", "", "output format: text, toon, json, yaml")
	pf.StringVarP(&opts.controller, "controller", "c", "", "only report endpoints whose controller contains this")
	pf.IntVarP(&opts.top, "top", "n", 0, "limit declarations to the top N by rank")
	pf.IntVar(&opts.workers, "workers", 0, "parallel parsers (default: one per CPU)")
	pf.IntVar(&opts.maxFileSize, "max-file-size", 0, "skip files larger than this many bytes")
	pf.StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warn, error")
	pf.BoolVar(&opts.plain, "plain", false, "disable terminal styling")
	cmd.Flags().StringVar(&opts.cache, "cache", "", "cache file path")

	cmd.AddCommand(newDeclarationsCmd(opts))
	cmd.AddCommand(newInitCmd())
	cmd.AddCommand(newWatchCmd(opts))
	return cmd
}

func newDeclarationsCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "declarations [root]",
		Short: "Rank controllers, concerns and helpers without resolving endpoints",
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
			am, err := analyze(cmd.Context(), root, cfg, opts, logger)
			if err != nil {
				return err
			}
			am.Endpoints = nil
			return render(cmd.OutOrStdout(), am, cfg, opts)
		},
	}
}

func resolveRoot(args []string) (string, error) {
	root := "."
	if len(args) > 0 {
		root = args[0]
	}

	root, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("resolving root: %w", err)
	}

	info, err := os.Stat(root)
	if err != nil {
		return "", fmt.Errorf("root path: %w", err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%s: not a directory", root)
	}
	return root, nil
}

// setup loads and validates the configuration, applies flag overrides and
// builds the logger.
func setup(cmd *cobra.Command, opts *options, root string) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(root, opts.configFile)
	if err != nil {
		return nil, nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("routes") {
		cfg.Sources.Routes = opts.routes
	}
	if flags.Changed("format") {
		cfg.Output.Format = opts.format
	}
	if flags.Changed("top") {
		cfg.Output.Top = opts.top
	}
	if flags.Changed("workers") {
		cfg.Workers = opts.workers
	}
	if flags.Changed("max-file-size") {
		cfg.Sources.MaxFileSize = opts.maxFileSize
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = opts.logLevel
	}

	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, newLogger(cmd.ErrOrStderr(), cfg.LogLevel), nil
}

func newLogger(w io.Writer, level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelWarn
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl}))
}

// analyze scans root and applies the controller filter and declaration limit.
func analyze(ctx context.Context, root string, cfg *config.Config, opts *options, logger *slog.Logger) (*model.AppMap, error) {
	res, err := scan.Run(ctx, root, cfg, logger)
	if err != nil {
		return nil, err
	}
	am := res.Map
	if opts.controller != "" {
		am = ranking.FilterEndpoints(am, opts.controller)
	}
	if cfg.Output.Top > 0 {
		am = ranking.SelectDeclarations(am, cfg.Output.Top)
	}
	return am, nil
}

func runAnalyze(ctx context.Context, stdout io.Writer, root string, cfg *config.Config, opts *options, logger *slog.Logger) error {
	if opts.cache != "" && cacheIsFresh(opts.cache, cacheInputs(root, cfg, opts.configFile)) {
		data, err := os.ReadFile(opts.cache)
		if err == nil {
			logger.Debug("using cached report", "path", opts.cache)
			_, _ = stdout.Write(data)
			return nil
		}
	}

	am, err := analyze(ctx, root, cfg, opts, logger)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := render(&buf, am, cfg, opts); err != nil {
		return err
	}

	if opts.cache != "" {
		if err := os.WriteFile(opts.cache, buf.Bytes(), 0o644); err != nil {
			logger.Warn("writing cache", "path", opts.cache, "error", err)
		}
	}

	_, err = stdout.Write(buf.Bytes())
	return err
}

func render(w io.Writer, am *model.AppMap, cfg *config.Config, opts *options) error {
	plain := opts.plain || !isTerminal(w)
	return report.Write(w, am, cfg.Output.Format, report.Options{Plain: plain})
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// cacheInputs lists every file the report depends on: sources, views, the
// route table and the config file.
func cacheInputs(root string, cfg *config.Config, configFile string) []string {
	var paths []string
	files, _ := discover.Files(root, cfg.Sources.Dirs, []string{"ruby"})
	if cfg.Sources.Views != "" {
		viewFiles, _ := discover.Files(root, []string{cfg.Sources.Views}, []string{"jbuilder"})
		files = append(files, viewFiles...)
	}
	for _, f := range files {
		paths = append(paths, filepath.Join(root, f.Path))
	}
	if cfg.Sources.Routes != "" {
		paths = append(paths, filepath.Join(root, cfg.Sources.Routes))
	}
	if configFile == "" {
		configFile = filepath.Join(root, config.DefaultConfigFile+"."+config.DefaultConfigType)
	}
	return append(paths, configFile)
}

// cacheIsFresh reports whether the cache is newer than every input. Missing
// inputs are ignored so that an absent route table or config file does not
// defeat the cache.
func cacheIsFresh(cachePath string, inputs []string) bool {
	cacheInfo, err := os.Stat(cachePath)
	if err != nil {
		return false
	}
	cacheMtime := cacheInfo.ModTime()

	for _, path := range inputs {
		fi, err := os.Stat(path)
		if err != nil {
			continue
		}
		if !fi.ModTime().Before(cacheMtime) {
			return false
		}
	}
	return true
}
