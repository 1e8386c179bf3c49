package pongo

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"reflect"
	"strings"
	"sync"

	"github.com/flosch/pongo2/v6"
)

const defaultSetName = "tplc"

// Option configures the Engine before construction.
type Option func(*config)

type config struct {
	name       string
	baseDir    string
	files      fs.FS
	loaders    []pongo2.TemplateLoader
	filters    map[string]FilterFunc
	globalData map[string]any
}

// FilterFunc is the plain-Go shape of a template filter.
type FilterFunc func(input any, param any) (any, error)

// WithSetName names the underlying pongo2 template set.
func WithSetName(name string) Option {
	return func(cfg *config) {
		if trimmed := strings.TrimSpace(name); trimmed != "" {
			cfg.name = trimmed
		}
	}
}

// WithBaseDir resolves included units from a directory on disk.
func WithBaseDir(dir string) Option {
	return func(cfg *config) {
		cfg.baseDir = strings.TrimSpace(dir)
	}
}

// WithFS resolves included units from an fs.FS.
func WithFS(files fs.FS) Option {
	return func(cfg *config) {
		cfg.files = files
	}
}

// WithLoader adds a template loader. Loaders added this way are consulted
// before the base directory and fs.FS loaders; the first one decides how
// include paths are made absolute.
func WithLoader(loader pongo2.TemplateLoader) Option {
	return func(cfg *config) {
		if loader != nil {
			cfg.loaders = append(cfg.loaders, loader)
		}
	}
}

// WithFilter registers a filter when the engine is built. Filters are global
// to pongo2; a name that already exists is left untouched.
func WithFilter(name string, fn FilterFunc) Option {
	return func(cfg *config) {
		name = strings.TrimSpace(name)
		if name == "" || fn == nil {
			return
		}
		if cfg.filters == nil {
			cfg.filters = make(map[string]FilterFunc)
		}
		cfg.filters[name] = fn
	}
}

// WithGlobalData seeds global context values available to every unit.
func WithGlobalData(data map[string]any) Option {
	return func(cfg *config) {
		if len(data) == 0 {
			return
		}
		if cfg.globalData == nil {
			cfg.globalData = make(map[string]any, len(data))
		}
		for key, value := range data {
			cfg.globalData[strings.TrimSpace(key)] = value
		}
	}
}

// Engine owns the pongo2 template set compiled units are parsed into. It is
// safe for concurrent use.
type Engine struct {
	mu      sync.RWMutex
	parseMu sync.Mutex

	templateSet *pongo2.TemplateSet
}

// New constructs an Engine. At least one loader, base directory or fs.FS is
// required so included units can be resolved.
func New(options ...Option) (*Engine, error) {
	cfg := &config{name: defaultSetName}
	for _, opt := range options {
		if opt == nil {
			continue
		}
		opt(cfg)
	}

	loaders := append([]pongo2.TemplateLoader(nil), cfg.loaders...)
	if cfg.baseDir != "" {
		loader, err := pongo2.NewLocalFileSystemLoader(cfg.baseDir)
		if err != nil {
			return nil, fmt.Errorf("pongo: create local loader: %w", err)
		}
		loaders = append(loaders, loader)
	}
	if cfg.files != nil {
		loaders = append(loaders, pongo2.NewFSLoader(cfg.files))
	}
	if len(loaders) == 0 {
		return nil, errors.New("pongo: need a loader, base dir or fs.FS")
	}

	engine := &Engine{
		templateSet: pongo2.NewSet(cfg.name, loaders...),
	}
	registerDefaultFilters()

	if err := engine.GlobalContext(cfg.globalData); err != nil {
		return nil, fmt.Errorf("pongo: apply global data: %w", err)
	}
	for name, fn := range cfg.filters {
		if pongo2.FilterExists(name) {
			continue
		}
		if err := engine.RegisterFilter(name, fn); err != nil {
			return nil, fmt.Errorf("pongo: register filter %q: %w", name, err)
		}
	}
	return engine, nil
}

// AddLoader appends loaders to the template set.
func (e *Engine) AddLoader(loaders ...pongo2.TemplateLoader) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.templateSet.AddLoader(loaders...)
}

// NewBackend returns a backend that turns one instruction stream into a Unit
// named name. Relative include paths resolve against the directory of name.
func (e *Engine) NewBackend(name string) *Backend {
	return newBackend(e, name)
}

// Parse compiles pongo2 source into a Unit without going through a stream.
func (e *Engine) Parse(name, source string) (*Unit, error) {
	if e == nil || e.templateSet == nil {
		return nil, errors.New("pongo: engine is nil")
	}
	e.parseMu.Lock()
	tpl, err := e.templateSet.FromString(source)
	e.parseMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("pongo: parse %q: %w", name, err)
	}
	return &Unit{name: name, source: source, tpl: tpl, engine: e}, nil
}

// RegisterFilter registers a pongo2 filter backed by fn.
func (e *Engine) RegisterFilter(name string, fn FilterFunc) error {
	if strings.TrimSpace(name) == "" || fn == nil {
		return errors.New("pongo: filter name and function required")
	}

	filter := func(in *pongo2.Value, param *pongo2.Value) (*pongo2.Value, *pongo2.Error) {
		var paramVal any
		if param != nil {
			paramVal = param.Interface()
		}
		result, err := fn(in.Interface(), paramVal)
		if err != nil {
			return nil, &pongo2.Error{Sender: "filter:" + name, OrigError: err}
		}
		return pongo2.AsValue(result), nil
	}

	if pongo2.FilterExists(name) {
		return fmt.Errorf("pongo: filter %q already exists", name)
	}
	return pongo2.RegisterFilter(name, filter)
}

// GlobalContext merges data into the globals every unit sees.
func (e *Engine) GlobalContext(data any) error {
	if e == nil || e.templateSet == nil {
		return errors.New("pongo: engine is nil")
	}
	if data == nil {
		return nil
	}

	globalCtx, err := convertToContext(data)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.templateSet.Globals == nil {
		e.templateSet.Globals = make(pongo2.Context)
	}
	e.templateSet.Globals.Update(globalCtx)
	return nil
}

func isCallable(v any) bool {
	if v == nil {
		return false
	}
	rv := reflect.ValueOf(v)
	return rv.IsValid() && rv.Kind() == reflect.Func
}

func convertToContext(data any) (pongo2.Context, error) {
	switch v := data.(type) {
	case nil:
		return pongo2.Context{}, nil
	case pongo2.Context:
		return convertMapToContext(map[string]any(v))
	case map[string]any:
		return convertMapToContext(v)
	default:
		m, err := jsonToMap(v)
		if err != nil {
			return nil, err
		}
		return convertMapToContext(m)
	}
}

func convertMapToContext(in map[string]any) (pongo2.Context, error) {
	out := make(pongo2.Context, len(in))
	for key, value := range in {
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		converted, err := convertValue(value)
		if err != nil {
			return nil, err
		}
		out[key] = converted
	}
	return out, nil
}

func convertValue(value any) (any, error) {
	if value == nil {
		return nil, nil
	}
	if isCallable(value) {
		return value, nil
	}

	switch v := value.(type) {
	case string, bool, int, int64:
		return v, nil
	case float64:
		return wholeNumber(v), nil
	case pongo2.Context:
		return convertMap(map[string]any(v))
	case map[string]any:
		return convertMap(v)
	case []any:
		return convertSlice(v)
	default:
		raw, err := jsonToAny(v)
		if err != nil {
			return nil, err
		}
		switch decoded := raw.(type) {
		case map[string]any:
			return convertMap(decoded)
		case []any:
			return convertSlice(decoded)
		case float64:
			return wholeNumber(decoded), nil
		default:
			return decoded, nil
		}
	}
}

// wholeNumber turns integral floats into ints so they print and compare like
// integer literals in compiled units.
func wholeNumber(f float64) any {
	if f == math.Trunc(f) && math.Abs(f) < 1<<53 {
		return int(f)
	}
	return f
}

func convertMap(in map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(in))
	for key, value := range in {
		converted, err := convertValue(value)
		if err != nil {
			return nil, err
		}
		out[key] = converted
	}
	return out, nil
}

func convertSlice(in []any) ([]any, error) {
	out := make([]any, 0, len(in))
	for _, value := range in {
		converted, err := convertValue(value)
		if err != nil {
			return nil, err
		}
		out = append(out, converted)
	}
	return out, nil
}

func jsonToMap(v any) (map[string]any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	out := map[string]any{}
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func jsonToAny(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}
