package markup

import (
	"context"
	"errors"
	"strings"

	"github.com/goliatone/go-tplc/pkg/command"
	"github.com/goliatone/go-tplc/pkg/compiler"
	"github.com/goliatone/go-tplc/pkg/stream"
)

const (
	defaultSymbolPrefix = "_tplc_"
	defaultListItem     = "item"
)

// Output contexts accepted by the `context` expression option.
const (
	ContextText      = "text"
	ContextAttribute = "attribute"
	ContextHTML      = "html"
	ContextURI       = "uri"
	ContextUnsafe    = "unsafe"
)

// Warning codes raised on the stream.
const (
	WarnSensitiveAttribute = "sensitive-attribute"
	WarnUnknownOption      = "unknown-option"
	WarnIgnoredAttribute   = "ignored-attribute"
)

// XSSCall is the runtime helper name used to request escaping.
const XSSCall = "xss"

// URICall is the runtime helper that rewrites a URI. Its second argument is
// the URI options as a query-encoded string literal.
const URICall = "uri"

// URI options rewritten through URICall.
var URIOptions = []string{"scheme", "domain", "extension", "fragment"}

var errStopped = errors.New("markup: stream closed")

// Option customises the Frontend.
type Option func(*Frontend)

// WithSymbolPrefix sets the prefix of generated variable names.
func WithSymbolPrefix(prefix string) Option {
	return func(f *Frontend) {
		f.prefix = prefix
	}
}

// WithListItem sets the loop variable used when data-sly-list has no
// identifier suffix.
func WithListItem(name string) Option {
	return func(f *Frontend) {
		f.listItem = name
	}
}

// Frontend compiles markup sources. It holds no per-compilation state and is
// safe for concurrent use.
type Frontend struct {
	prefix   string
	listItem string
}

var _ compiler.Frontend[command.Command] = (*Frontend)(nil)

// New constructs a Frontend.
func New(options ...Option) *Frontend {
	f := &Frontend{}
	for _, opt := range options {
		if opt == nil {
			continue
		}
		opt(f)
	}
	if strings.TrimSpace(f.prefix) == "" {
		f.prefix = defaultSymbolPrefix
	}
	if strings.TrimSpace(f.listItem) == "" {
		f.listItem = defaultListItem
	}
	return f
}

// Compile emits the commands for source and closes s. Syntax errors close
// s with a *diag.SyntaxError; a canceled ctx closes it with ctx.Err().
func (f *Frontend) Compile(ctx context.Context, s *stream.Stream[command.Command], source string) {
	c := newCompilation(ctx, f, s, source)
	err := c.run()
	if s.Closed() {
		return
	}
	if err != nil {
		s.SignalError(err)
		return
	}
	s.SignalDone()
}
