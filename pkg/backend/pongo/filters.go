package pongo

import (
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/flosch/pongo2/v6"
	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"
)

// XSSFilter is the pongo2 filter compiled units use for context-aware
// escaping. Its parameter names the output context.
const XSSFilter = "tplc_xss"

// Output contexts understood by XSSFilter.
const (
	ContextText      = "text"
	ContextAttribute = "attribute"
	ContextHTML      = "html"
	ContextURI       = "uri"
	ContextUnsafe    = "unsafe"
)

var (
	registerOnce sync.Once
	htmlPolicy   = bluemonday.UGCPolicy()
	safeSchemes  = map[string]bool{"http": true, "https": true, "mailto": true, "tel": true}
)

func registerDefaultFilters() {
	registerOnce.Do(func() {
		if !pongo2.FilterExists(XSSFilter) {
			_ = pongo2.RegisterFilter(XSSFilter, filterXSS)
		}
		if !pongo2.FilterExists(URIFilter) {
			_ = pongo2.RegisterFilter(URIFilter, filterURIOptions)
		}
	})
}

func filterXSS(in *pongo2.Value, param *pongo2.Value) (*pongo2.Value, *pongo2.Error) {
	context := ContextText
	if param != nil && !param.IsNil() {
		context = param.String()
	}
	out, err := Escape(in.String(), context)
	if err != nil {
		return nil, &pongo2.Error{Sender: "filter:" + XSSFilter, OrigError: err}
	}
	return pongo2.AsSafeValue(out), nil
}

// Escape renders value for the named output context.
func Escape(value, context string) (string, error) {
	switch context {
	case ContextText, ContextAttribute:
		return html.EscapeString(value), nil
	case ContextHTML:
		return htmlPolicy.Sanitize(value), nil
	case ContextURI:
		return html.EscapeString(filterURI(value)), nil
	case ContextUnsafe:
		return value, nil
	default:
		return "", fmt.Errorf("pongo: unknown output context %q", context)
	}
}

// filterURI drops values whose scheme could execute script.
func filterURI(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return ""
	}
	u, err := url.Parse(trimmed)
	if err != nil {
		return ""
	}
	if u.Scheme == "" {
		return trimmed
	}
	if !safeSchemes[strings.ToLower(u.Scheme)] {
		return ""
	}
	return trimmed
}
