package pipeline

import (
	"fmt"
	"net/url"
	"path"
	"regexp"
	"strings"

	"github.com/ternarybob/lectern/internal/models"
)

// linkFilter decides whether a discovered link stays inside the job's crawl
// boundary: scope relative to the root URL plus include/exclude patterns.
// Exclude always wins over include.
type linkFilter struct {
	root    *url.URL
	rootDir string
	scope   models.ScopeMode
	include []matcher
	exclude []matcher
}

type matcher func(u *url.URL, raw string) bool

func newLinkFilter(opts models.ScraperOptions) (*linkFilter, error) {
	root, err := url.Parse(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid root url %q: %w", opts.URL, err)
	}

	include, err := compilePatterns(opts.IncludePatterns)
	if err != nil {
		return nil, err
	}
	exclude, err := compilePatterns(opts.ExcludePatterns)
	if err != nil {
		return nil, err
	}

	return &linkFilter{
		root:    root,
		rootDir: dirOf(root.Path),
		scope:   opts.Scope,
		include: include,
		exclude: exclude,
	}, nil
}

func (f *linkFilter) Allow(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}

	if !f.inScope(u) {
		return false
	}
	for _, m := range f.exclude {
		if m(u, rawURL) {
			return false
		}
	}
	if len(f.include) == 0 {
		return true
	}
	for _, m := range f.include {
		if m(u, rawURL) {
			return true
		}
	}
	return false
}

func (f *linkFilter) inScope(u *url.URL) bool {
	if u.Scheme != f.root.Scheme {
		return false
	}
	switch f.scope {
	case models.ScopeDomain:
		return sameRegistrableDomain(u.Hostname(), f.root.Hostname())
	case models.ScopeHostname:
		return strings.EqualFold(u.Hostname(), f.root.Hostname())
	default: // subpages
		return strings.EqualFold(u.Hostname(), f.root.Hostname()) &&
			strings.HasPrefix(u.Path, f.rootDir)
	}
}

// dirOf returns the directory prefix of a URL path, trailing slash included.
func dirOf(p string) string {
	if p == "" {
		return "/"
	}
	idx := strings.LastIndex(p, "/")
	if idx < 0 {
		return "/"
	}
	return p[:idx+1]
}

// sameRegistrableDomain approximates eTLD+1 comparison by the last two host
// labels, which is good enough for documentation hosts.
func sameRegistrableDomain(a, b string) bool {
	return registrableDomain(a) == registrableDomain(b)
}

func registrableDomain(host string) string {
	host = strings.ToLower(strings.TrimPrefix(host, "www."))
	labels := strings.Split(host, ".")
	if len(labels) <= 2 {
		return host
	}
	return strings.Join(labels[len(labels)-2:], ".")
}

// compilePatterns turns the pattern list into matchers. Patterns wrapped in
// /.../ are regular expressions tested against the full URL; anything else
// is a glob tested against the URL path and the full URL.
func compilePatterns(patterns []string) ([]matcher, error) {
	out := make([]matcher, 0, len(patterns))
	for _, p := range patterns {
		if len(p) > 1 && strings.HasPrefix(p, "/") && strings.HasSuffix(p, "/") {
			re, err := regexp.Compile(p[1 : len(p)-1])
			if err != nil {
				return nil, fmt.Errorf("invalid pattern %q: %w", p, err)
			}
			out = append(out, func(u *url.URL, raw string) bool {
				return re.MatchString(raw)
			})
			continue
		}
		glob := p
		out = append(out, func(u *url.URL, raw string) bool {
			if ok, _ := path.Match(glob, u.Path); ok {
				return true
			}
			ok, _ := path.Match(glob, raw)
			return ok
		})
	}
	return out, nil
}
