// Package tplc compiles markup templates into pongo2 units through an
// instruction-stream pipeline and renders them. The subpackages expose each
// stage; this package wires them together from a config.Config.
package tplc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"

	"go.uber.org/zap"

	"github.com/goliatone/go-tplc/pkg/backend/pongo"
	"github.com/goliatone/go-tplc/pkg/command"
	"github.com/goliatone/go-tplc/pkg/compiler"
	"github.com/goliatone/go-tplc/pkg/config"
	"github.com/goliatone/go-tplc/pkg/frontend/markup"
	"github.com/goliatone/go-tplc/pkg/source"
	"github.com/goliatone/go-tplc/pkg/unit"
)

// Compiler is the command-stream compiler used by the engine.
type Compiler = compiler.Compiler[command.Command]

// Result summarises a successful compilation.
type Result = compiler.Result

// Failure describes a failed compilation.
type Failure = compiler.Failure

// Unit is a compiled, executable template.
type Unit = pongo.Unit

// Option configures an Engine.
type Option func(*options)

type options struct {
	config        config.Config
	logger        *zap.Logger
	files         fs.FS
	resolver      source.Resolver
	loaderOptions []source.LoaderOption
	engineOptions []pongo.Option
	markup        []markup.Option
}

// WithConfig replaces config.Default.
func WithConfig(cfg config.Config) Option {
	return func(o *options) {
		o.config = cfg
	}
}

// WithLogger routes compiler and repository logs to logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithFS loads templates from files instead of Templates.Root.
func WithFS(files fs.FS) Option {
	return func(o *options) {
		o.files = files
	}
}

// WithResolver overrides how template names map to sources.
func WithResolver(resolve source.Resolver) Option {
	return func(o *options) {
		o.resolver = resolve
	}
}

// WithLoaderOptions configures the source loader, e.g. to allow HTTP.
func WithLoaderOptions(opts ...source.LoaderOption) Option {
	return func(o *options) {
		o.loaderOptions = append(o.loaderOptions, opts...)
	}
}

// WithEngineOptions forwards options to the pongo2 engine.
func WithEngineOptions(opts ...pongo.Option) Option {
	return func(o *options) {
		o.engineOptions = append(o.engineOptions, opts...)
	}
}

// WithMarkupOptions forwards options to the markup front-end.
func WithMarkupOptions(opts ...markup.Option) Option {
	return func(o *options) {
		o.markup = append(o.markup, opts...)
	}
}

// NewCompiler builds the markup compiler described by cfg.
func NewCompiler(cfg config.Config, logger *zap.Logger, opts ...markup.Option) (*Compiler, error) {
	chain, err := cfg.Chain()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	compilerOptions := []compiler.Option[command.Command]{
		compiler.WithPasses(chain),
		compiler.WithLogger[command.Command](logger),
	}
	if cfg.Validate {
		compilerOptions = append(compilerOptions, compiler.WithClassifier(command.Regions))
	}
	return compiler.New[command.Command](markup.New(opts...), compilerOptions...), nil
}

// Dump compiles src and returns the instructions that reach the backend.
func Dump(ctx context.Context, c *Compiler, src string) ([]command.Command, Result, error) {
	if c == nil {
		return nil, Result{}, errors.New("tplc: compiler is required")
	}
	collector := compiler.Collect[command.Command]()
	result, err := c.Compile(ctx, src, collector)
	if err != nil {
		return nil, result, err
	}
	return collector.Instructions, result, nil
}

// Engine compiles templates by name and renders them.
type Engine struct {
	config   config.Config
	compiler *Compiler
	repo     *unit.Repository
	logger   *zap.Logger
}

// New constructs an Engine. Templates are read from the fs.FS given by
// WithFS or, failing that, from Templates.Root on disk.
func New(opts ...Option) (*Engine, error) {
	o := options{config: config.Default()}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&o)
	}
	if err := o.config.Check(); err != nil {
		return nil, err
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}

	c, err := NewCompiler(o.config, o.logger, o.markup...)
	if err != nil {
		return nil, err
	}

	loaderOptions := o.loaderOptions
	resolve := o.resolver
	if o.files != nil {
		loaderOptions = append([]source.LoaderOption{source.WithFileSystem(o.files)}, loaderOptions...)
		if resolve == nil {
			resolve = source.FSResolver()
		}
	}
	if resolve == nil {
		resolve = source.DirResolver(o.config.Templates.Root)
	}

	engineOptions := o.engineOptions
	if len(o.config.Templates.Globals) > 0 {
		engineOptions = append([]pongo.Option{pongo.WithGlobalData(o.config.Templates.Globals)}, engineOptions...)
	}

	repo, err := unit.New(NewLoader(loaderOptions...),
		unit.WithResolver(resolve),
		unit.WithCompiler(c),
		unit.WithCheckModified(o.config.Templates.CheckModified),
		unit.WithEngineOptions(engineOptions...),
		unit.WithLogger(o.logger),
	)
	if err != nil {
		return nil, fmt.Errorf("tplc: %w", err)
	}

	return &Engine{
		config:   o.config,
		compiler: c,
		repo:     repo,
		logger:   o.logger,
	}, nil
}

// Config returns the settings the engine was built with.
func (e *Engine) Config() config.Config { return e.config }

// Compiler returns the compiler shared by every unit.
func (e *Engine) Compiler() *Compiler { return e.compiler }

// Repository exposes the unit cache.
func (e *Engine) Repository() *unit.Repository { return e.repo }

// Compile returns the cached unit for name, compiling it when needed.
func (e *Engine) Compile(ctx context.Context, name string) (*Unit, Result, error) {
	return e.repo.Compile(ctx, name)
}

// CompileString compiles src as an uncached unit called name. Includes in
// src still resolve through the repository.
func (e *Engine) CompileString(ctx context.Context, name, src string) (*Unit, Result, error) {
	backend := e.repo.Engine().NewBackend(name)
	result, err := e.compiler.Compile(ctx, src, backend)
	if err != nil {
		return nil, Result{}, err
	}
	return backend.Unit(), result, nil
}

// Source returns the generated pongo2 source for name.
func (e *Engine) Source(ctx context.Context, name string) (string, error) {
	u, err := e.repo.Get(ctx, name)
	if err != nil {
		return "", err
	}
	return u.Source(), nil
}

// Render executes the unit called name with data.
func (e *Engine) Render(ctx context.Context, name string, data any) (string, error) {
	return e.repo.Render(ctx, name, data)
}

// Execute writes the output of the unit called name to w.
func (e *Engine) Execute(ctx context.Context, w io.Writer, name string, data any) error {
	return e.repo.Execute(ctx, w, name, data)
}

// Invalidate drops cached units; with no names it clears the cache.
func (e *Engine) Invalidate(names ...string) int {
	return e.repo.Invalidate(names...)
}
