package pongo

import (
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/flosch/pongo2/v6"
)

// URIFilter rewrites URIs. Its parameter is the query-encoded option set
// accepted by ParseURIOptions.
const URIFilter = "tplc_uri"

// URIOptions holds the URI parts a template replaces. Empty fields keep the
// original part; a present but empty Fragment removes it.
type URIOptions struct {
	Scheme    string
	Domain    string
	Extension string
	Fragment  *string
}

// ParseURIOptions decodes options such as "extension=json&scheme=https".
func ParseURIOptions(raw string) (URIOptions, error) {
	values, err := url.ParseQuery(raw)
	if err != nil {
		return URIOptions{}, fmt.Errorf("pongo: uri options: %w", err)
	}
	var opts URIOptions
	for key := range values {
		value := values.Get(key)
		switch key {
		case "scheme":
			opts.Scheme = value
		case "domain":
			opts.Domain = value
		case "extension":
			opts.Extension = strings.TrimPrefix(value, ".")
		case "fragment":
			opts.Fragment = &value
		default:
			return URIOptions{}, fmt.Errorf("pongo: unknown uri option %q", key)
		}
	}
	return opts, nil
}

// ManipulateURI applies opts to raw. Values that do not parse as URIs are
// returned unchanged.
func ManipulateURI(raw string, opts URIOptions) string {
	if strings.TrimSpace(raw) == "" {
		return raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	if opts.Scheme != "" {
		u.Scheme = opts.Scheme
	}
	if opts.Fragment != nil {
		u.Fragment = *opts.Fragment
		u.RawFragment = ""
	}
	if u.Opaque != "" {
		return u.String()
	}
	if opts.Domain != "" {
		port := u.Port()
		u.Host = opts.Domain
		if port != "" {
			u.Host += ":" + port
		}
	}
	if opts.Extension != "" && u.Path != "" && !strings.HasSuffix(u.Path, "/") {
		u.Path = withExtension(u.Path, opts.Extension)
		u.RawPath = ""
	}
	return u.String()
}

// withExtension replaces the part after the last dot of the final segment,
// keeping selectors such as "page.print" in "page.print.html".
func withExtension(p, ext string) string {
	dir, file := path.Split(p)
	if i := strings.LastIndex(file, "."); i > 0 {
		file = file[:i]
	}
	return dir + file + "." + ext
}

func filterURIOptions(in *pongo2.Value, param *pongo2.Value) (*pongo2.Value, *pongo2.Error) {
	raw := ""
	if param != nil && !param.IsNil() {
		raw = param.String()
	}
	opts, err := ParseURIOptions(raw)
	if err != nil {
		return nil, &pongo2.Error{Sender: "filter:" + URIFilter, OrigError: err}
	}
	return pongo2.AsValue(ManipulateURI(in.String(), opts)), nil
}
