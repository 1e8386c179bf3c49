// Package unit caches compiled units by template name. It loads sources
// through a source.Loader, compiles them with the markup front-end and the
// pongo2 backend, and serves them to the engine's include resolution so
// nested units are compiled on first use.
package unit

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/flosch/pongo2/v6"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/goliatone/go-tplc/pkg/backend/pongo"
	"github.com/goliatone/go-tplc/pkg/command"
	"github.com/goliatone/go-tplc/pkg/compiler"
	"github.com/goliatone/go-tplc/pkg/frontend/markup"
	"github.com/goliatone/go-tplc/pkg/optimize/passes"
	"github.com/goliatone/go-tplc/pkg/source"
)

// Option customises a Repository.
type Option func(*Repository)

// WithResolver maps template names to sources. Defaults to
// source.FSResolver.
func WithResolver(resolve source.Resolver) Option {
	return func(r *Repository) {
		r.resolve = resolve
	}
}

// WithCompiler replaces the default markup compiler.
func WithCompiler(c *compiler.Compiler[command.Command]) Option {
	return func(r *Repository) {
		r.compiler = c
	}
}

// WithEngineOptions forwards options to the pongo2 engine. The repository
// always installs itself as the first loader.
func WithEngineOptions(options ...pongo.Option) Option {
	return func(r *Repository) {
		r.engineOptions = append(r.engineOptions, options...)
	}
}

// WithCheckModified reloads the source on every lookup and recompiles when
// its fingerprint changed.
func WithCheckModified(enabled bool) Option {
	return func(r *Repository) {
		r.checkModified = enabled
	}
}

// WithLogger routes repository diagnostics to logger.
func WithLogger(logger *zap.Logger) Option {
	return func(r *Repository) {
		r.logger = logger
	}
}

// Repository resolves template names to compiled units. It is safe for
// concurrent use; concurrent requests for the same name share one
// compilation.
type Repository struct {
	loader        source.Loader
	resolve       source.Resolver
	compiler      *compiler.Compiler[command.Command]
	engine        *pongo.Engine
	engineOptions []pongo.Option
	checkModified bool
	logger        *zap.Logger

	mu      sync.RWMutex
	entries map[string]*entry
	group   singleflight.Group
}

type entry struct {
	unit        *pongo.Unit
	fingerprint uint64
	result      compiler.Result
}

// New constructs a Repository reading sources through loader.
func New(loader source.Loader, options ...Option) (*Repository, error) {
	if loader == nil {
		return nil, errors.New("unit: loader is required")
	}
	r := &Repository{
		loader:  loader,
		entries: make(map[string]*entry),
	}
	for _, opt := range options {
		if opt == nil {
			continue
		}
		opt(r)
	}
	if r.logger == nil {
		r.logger = zap.NewNop()
	}
	if r.resolve == nil {
		r.resolve = source.FSResolver()
	}
	if r.compiler == nil {
		r.compiler = compiler.New[command.Command](markup.New(),
			compiler.WithClassifier(command.Regions),
			compiler.WithPasses(passes.Default()),
			compiler.WithLogger[command.Command](r.logger),
		)
	}

	engineOptions := append([]pongo.Option{pongo.WithLoader(r.TemplateLoader())}, r.engineOptions...)
	engine, err := pongo.New(engineOptions...)
	if err != nil {
		return nil, fmt.Errorf("unit: create engine: %w", err)
	}
	r.engine = engine
	return r, nil
}

// Engine exposes the pongo2 engine units are parsed into.
func (r *Repository) Engine() *pongo.Engine {
	return r.engine
}

// Get returns the compiled unit for name, compiling it on first use.
func (r *Repository) Get(ctx context.Context, name string) (*pongo.Unit, error) {
	unit, _, err := r.Compile(ctx, name)
	return unit, err
}

// Compile is Get plus the compilation summary of the cached unit.
func (r *Repository) Compile(ctx context.Context, name string) (*pongo.Unit, compiler.Result, error) {
	if ctx == nil {
		return nil, compiler.Result{}, errors.New("unit: context is required")
	}
	cleaned, err := source.CleanName(name)
	if err != nil {
		return nil, compiler.Result{}, err
	}
	if !r.checkModified {
		if e, ok := r.lookup(cleaned); ok {
			return e.unit, e.result, nil
		}
	}

	v, err, _ := r.group.Do(cleaned, func() (any, error) {
		return r.load(ctx, cleaned)
	})
	if err != nil {
		return nil, compiler.Result{}, err
	}
	e := v.(*entry)
	return e.unit, e.result, nil
}

// Render executes the unit for name with data.
func (r *Repository) Render(ctx context.Context, name string, data any) (string, error) {
	unit, err := r.Get(ctx, name)
	if err != nil {
		return "", err
	}
	return unit.Render(ctx, data)
}

// Execute writes the output of the unit for name to w.
func (r *Repository) Execute(ctx context.Context, w io.Writer, name string, data any) error {
	unit, err := r.Get(ctx, name)
	if err != nil {
		return err
	}
	return unit.Execute(ctx, w, data)
}

// Invalidate drops cached units. Without names it clears the whole cache.
// It returns the number of entries removed.
func (r *Repository) Invalidate(names ...string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(names) == 0 {
		removed := len(r.entries)
		for name := range r.entries {
			r.group.Forget(name)
		}
		r.entries = make(map[string]*entry)
		r.logger.Debug("unit cache cleared", zap.Int("removed", removed))
		return removed
	}

	removed := 0
	for _, name := range names {
		cleaned, err := source.CleanName(name)
		if err != nil {
			continue
		}
		r.group.Forget(cleaned)
		if _, ok := r.entries[cleaned]; ok {
			delete(r.entries, cleaned)
			removed++
		}
	}
	r.logger.Debug("unit cache invalidated", zap.Strings("names", names), zap.Int("removed", removed))
	return removed
}

// Cached lists the names of compiled units in sorted order.
func (r *Repository) Cached() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Repository) lookup(name string) (*entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	return e, ok
}

func (r *Repository) load(ctx context.Context, name string) (*entry, error) {
	src, err := r.resolve(name)
	if err != nil {
		return nil, fmt.Errorf("unit: resolve %q: %w", name, err)
	}
	doc, err := r.loader.Load(ctx, src)
	if err != nil {
		return nil, fmt.Errorf("unit: load %q: %w", name, err)
	}

	fingerprint := doc.Fingerprint()
	if cached, ok := r.lookup(name); ok && cached.fingerprint == fingerprint {
		return cached, nil
	}

	backend := r.engine.NewBackend(name)
	result, err := r.compiler.Compile(ctx, doc.Text(), backend)
	if err != nil {
		r.logger.Info("unit compilation failed",
			zap.String("unit", name),
			zap.String("location", doc.Location()),
			zap.Error(err),
		)
		return nil, fmt.Errorf("unit: compile %q: %w", name, err)
	}

	e := &entry{unit: backend.Unit(), fingerprint: fingerprint, result: result}
	r.mu.Lock()
	r.entries[name] = e
	r.mu.Unlock()

	r.logger.Debug("unit compiled",
		zap.String("unit", name),
		zap.Uint64("fingerprint", fingerprint),
		zap.Int("warnings", len(result.Warnings)),
		zap.Duration("duration", result.Duration),
	)
	return e, nil
}

// TemplateLoader adapts the repository to pongo2 so `{% include %}` resolves
// to compiled units. Include paths are already root-relative, so Abs ignores
// the including template.
func (r *Repository) TemplateLoader() pongo2.TemplateLoader {
	return templateLoader{repo: r}
}

type templateLoader struct {
	repo *Repository
}

func (l templateLoader) Abs(_, name string) string {
	cleaned, err := source.CleanName(name)
	if err != nil {
		return name
	}
	return cleaned
}

func (l templateLoader) Get(path string) (io.Reader, error) {
	unit, err := l.repo.Get(context.Background(), path)
	if err != nil {
		return nil, err
	}
	return strings.NewReader(unit.Source()), nil
}
