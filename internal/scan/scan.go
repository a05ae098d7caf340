// Package scan runs the whole analysis of a Rails application: discovery,
// parallel parsing, registry merge, route and view loading, and endpoint
// resolution.
package scan

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/phobologic/railscope/internal/classify"
	"github.com/phobologic/railscope/internal/config"
	"github.com/phobologic/railscope/internal/discover"
	"github.com/phobologic/railscope/internal/graph"
	"github.com/phobologic/railscope/internal/lang"
	"github.com/phobologic/railscope/internal/model"
	"github.com/phobologic/railscope/internal/parse"
	"github.com/phobologic/railscope/internal/registry"
	"github.com/phobologic/railscope/internal/resolve"
	"github.com/phobologic/railscope/internal/routes"
	"github.com/phobologic/railscope/internal/views"
)

// ErrNoSources is returned when no Ruby files were found under the
// configured source directories.
var ErrNoSources = errors.New("no Ruby source files found")

// Result is the outcome of one scan.
type Result struct {
	Registry *registry.Registry
	Views    views.Index
	Requests []routes.Request
	// Routed is false when no route table was found and the requests were
	// derived from controller methods.
	Routed bool
	Map    *model.AppMap
}

// Run analyzes the application at root.
func Run(ctx context.Context, root string, cfg *config.Config, logger *slog.Logger) (*Result, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	files, err := discover.Files(root, cfg.Sources.Dirs, []string{"ruby"})
	if err != nil {
		return nil, fmt.Errorf("discovering files: %w", err)
	}
	files = filterBySize(root, files, cfg.Sources.MaxFileSize, logger)
	if len(files) == 0 {
		return nil, ErrNoSources
	}
	logger.Debug("discovered sources", "files", len(files))

	classifier := classify.New(cfg.ClassifyOptions())
	parsed, err := parseFiles(ctx, root, files, cfg.Workers, classifier)
	if err != nil {
		return nil, err
	}

	am := &model.AppMap{App: filepath.Base(root), FilesScanned: len(files)}
	reg := registry.New()
	for i, r := range parsed {
		if r.err != nil {
			am.FilesFailed++
			am.Failures = append(am.Failures, failureFor(files[i].Path, r.err))
			logger.Warn("skipping file", "file", files[i].Path, "error", r.err)
			continue
		}
		reg.Merge(r.decls)
	}

	am.Dependencies = graph.Build(reg)
	for _, cycle := range graph.Cycles(am.Dependencies) {
		am.Failures = append(am.Failures, model.Failure{
			Message: fmt.Sprintf("%v: %s < %s", resolve.ErrCyclicAncestry, strings.Join(cycle, " < "), cycle[0]),
		})
	}
	am.Declarations = graph.Nodes(reg)
	graph.Rank(am.Declarations, am.Dependencies)

	ix, err := loadViews(ctx, root, cfg, logger)
	if err != nil {
		return nil, err
	}

	reqs, routed, err := loadRequests(root, cfg, reg, logger)
	if err != nil {
		return nil, err
	}

	am.Endpoints, am.Warnings = resolveEndpoints(reg, reqs, ix, logger)

	return &Result{
		Registry: reg,
		Views:    ix,
		Requests: reqs,
		Routed:   routed,
		Map:      am,
	}, nil
}

func failureFor(path string, err error) model.Failure {
	var cerr *classify.Error
	if errors.As(err, &cerr) {
		return model.Failure{
			File:    path,
			Line:    cerr.Line,
			Message: fmt.Sprintf("%s: %s", cerr.Reason, cerr.Fragment),
		}
	}
	return model.Failure{File: path, Message: err.Error()}
}

func filterBySize(root string, files []discover.FileEntry, maxSize int, logger *slog.Logger) []discover.FileEntry {
	if maxSize <= 0 {
		return files
	}
	var kept []discover.FileEntry
	for _, f := range files {
		fi, err := os.Stat(filepath.Join(root, f.Path))
		if err != nil {
			kept = append(kept, f) // keep if can't stat
			continue
		}
		if fi.Size() > int64(maxSize) {
			logger.Warn("skipping large file", "file", f.Path, "bytes", fi.Size(), "limit", maxSize)
			continue
		}
		kept = append(kept, f)
	}
	return kept
}

// worker owns one tree-sitter parser per language.
type worker struct {
	classifier *classify.Classifier
	parsers    map[string]*parse.Parser
}

func newWorker(classifier *classify.Classifier) *worker {
	return &worker{classifier: classifier, parsers: make(map[string]*parse.Parser)}
}

func (w *worker) parser(language string) *parse.Parser {
	p, ok := w.parsers[language]
	if !ok {
		p = parse.New(lang.Languages[language], w.classifier)
		w.parsers[language] = p
	}
	return p
}

// forEach runs fn for indexes 0..n-1 on a bounded pool. Each goroutine gets
// its own worker. The first error cancels the rest.
func forEach(ctx context.Context, n, workers int, classifier *classify.Classifier, fn func(ctx context.Context, w *worker, i int) error) error {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	workers = min(workers, n)

	g, gctx := errgroup.WithContext(ctx)
	work := make(chan int)

	g.Go(func() error {
		defer close(work)
		for i := range n {
			select {
			case work <- i:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})

	for range workers {
		g.Go(func() error {
			w := newWorker(classifier)
			for i := range work {
				if err := fn(gctx, w, i); err != nil {
					return err
				}
			}
			return nil
		})
	}
	return g.Wait()
}

type parseResult struct {
	decls []model.Declaration
	err   error
}

// parseFiles classifies every file. Per-file failures are returned in the
// result slice, in discovery order; only cancellation fails the call.
func parseFiles(ctx context.Context, root string, files []discover.FileEntry, workers int, classifier *classify.Classifier) ([]parseResult, error) {
	results := make([]parseResult, len(files))
	err := forEach(ctx, len(files), workers, classifier, func(ctx context.Context, w *worker, i int) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		f := files[i]
		source, err := os.ReadFile(filepath.Join(root, f.Path))
		if err != nil {
			results[i].err = err
			return nil
		}
		results[i].decls, results[i].err = w.parser(f.Language).File(ctx, f.Path, source)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

// loadViews indexes every jbuilder template under the views directory.
func loadViews(ctx context.Context, root string, cfg *config.Config, logger *slog.Logger) (views.Index, error) {
	ix := views.Index{}
	if cfg.Sources.Views == "" {
		return ix, nil
	}
	files, err := discover.Files(root, []string{cfg.Sources.Views}, []string{"jbuilder"})
	if err != nil {
		return nil, fmt.Errorf("discovering views: %w", err)
	}

	found := make([]*views.View, len(files))
	err = forEach(ctx, len(files), cfg.Workers, nil, func(ctx context.Context, w *worker, i int) error {
		f := files[i]
		controller, action, ok := views.Key(cfg.Sources.Views, f.Path)
		if !ok {
			return nil
		}
		source, err := os.ReadFile(filepath.Join(root, f.Path))
		if err != nil {
			logger.Warn("skipping view", "file", f.Path, "error", err)
			return nil
		}
		tree, err := w.parser(f.Language).Tree(ctx, source)
		if err != nil {
			return err
		}
		defer tree.Close()
		found[i] = &views.View{
			Controller: controller,
			Action:     action,
			Path:       f.Path,
			Fields:     views.Fields(tree.RootNode(), source),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, v := range found {
		if v != nil {
			ix.Add(v)
		}
	}
	logger.Debug("indexed views", "views", ix.Len())
	return ix, nil
}

// loadRequests reads the route table. Without one, every controller
// method that is not a hook target becomes an unrouted request.
func loadRequests(root string, cfg *config.Config, reg *registry.Registry, logger *slog.Logger) ([]routes.Request, bool, error) {
	if cfg.Sources.Routes != "" {
		path := cfg.Sources.Routes
		if !filepath.IsAbs(path) {
			path = filepath.Join(root, path)
		}
		reqs, err := routes.ParseFile(path)
		switch {
		case err == nil:
			return reqs, true, nil
		case !errors.Is(err, fs.ErrNotExist):
			return nil, false, err
		}
		logger.Info("route table not found, using controller actions", "path", cfg.Sources.Routes)
	}

	var reqs []routes.Request
	for _, ctrl := range reg.Controllers() {
		targets := model.StringSet{}
		for _, h := range ctrl.ActionHooks {
			targets.Add(h.Target)
		}
		for _, m := range ctrl.Methods {
			if targets.Has(m.Name) {
				continue
			}
			reqs = append(reqs, routes.ForAction(ctrl.QualifiedName(), m.Name))
		}
	}
	return reqs, false, nil
}

// resolveEndpoints resolves each request against its controller. Errors
// are recorded on the endpoint rather than aborting the scan.
func resolveEndpoints(reg *registry.Registry, reqs []routes.Request, ix views.Index, logger *slog.Logger) ([]model.EndpointReport, []string) {
	type cached struct {
		res *resolve.Resolver
		err error
	}
	resolvers := make(map[string]cached)
	var warnings []string

	resolverFor := func(ctrl *model.Controller) (*resolve.Resolver, error) {
		name := ctrl.QualifiedName()
		if c, ok := resolvers[name]; ok {
			return c.res, c.err
		}
		res, err := resolve.New(reg, ctrl, resolve.WithLogger(logger))
		resolvers[name] = cached{res, err}
		if res != nil {
			for _, w := range res.Warnings() {
				warnings = append(warnings, w.String())
			}
		}
		return res, err
	}

	endpoints := make([]model.EndpointReport, 0, len(reqs))
	for _, req := range reqs {
		name := req.ControllerName()
		rep := model.EndpointReport{
			Request:    req.ID(),
			Controller: name,
			Action:     req.Action,
			Params:     []string{},
		}
		if v, ok := req.View(ix); ok {
			rep.Response = v.Fields
		}

		ctrl, ok := reg.Controller(name)
		if !ok {
			rep.Error = fmt.Sprintf("controller %s not found for request %s", name, req.ID())
			endpoints = append(endpoints, rep)
			continue
		}
		res, err := resolverFor(ctrl)
		if err != nil {
			rep.Error = err.Error()
			endpoints = append(endpoints, rep)
			continue
		}
		ep, err := res.Endpoint(req.Action, req.ID())
		if err != nil {
			logger.Debug("endpoint unresolved", "request", req.ID(), "error", err)
			rep.Error = err.Error()
			endpoints = append(endpoints, rep)
			continue
		}

		rep.Params = ep.Params.Sorted()
		rep.InstanceVariables = ep.InstanceVariables.Sorted()
		rep.Headers = headerNames(ep.Headers)
		endpoints = append(endpoints, rep)
	}
	return endpoints, warnings
}

// headerNames renders reads as the key and writes as key=value.
func headerNames(headers []model.Header) []string {
	var out []string
	for _, h := range headers {
		if h.Value == "" {
			out = append(out, h.Key)
		} else {
			out = append(out, h.Key+"="+h.Value)
		}
	}
	return out
}
