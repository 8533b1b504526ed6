package route

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// Glob is a compiled URL pattern.
//
//	*      any run of characters except '/'
//	**     any run of characters, including '/'
//	?      one character except '/'
//	{a,b}  either alternative
//	\x     a literal x
//
// Patterns starting with '/' match the URL path only. All other patterns
// match the full URL, query included. Matching is anchored at both ends.
type Glob struct {
	pattern  string
	pathOnly bool
	re       *regexp.Regexp
}

// CompileGlob compiles pattern into a Glob.
func CompileGlob(pattern string) (*Glob, error) {
	if pattern == "" {
		return nil, fmt.Errorf("route: empty pattern")
	}
	expr, err := globToRegexp(pattern)
	if err != nil {
		return nil, fmt.Errorf("route: invalid pattern %q: %w", pattern, err)
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("route: invalid pattern %q: %w", pattern, err)
	}
	return &Glob{
		pattern:  pattern,
		pathOnly: strings.HasPrefix(pattern, "/"),
		re:       re,
	}, nil
}

// MustCompileGlob is CompileGlob that panics on error.
func MustCompileGlob(pattern string) *Glob {
	g, err := CompileGlob(pattern)
	if err != nil {
		panic(err)
	}
	return g
}

// String returns the source pattern.
func (g *Glob) String() string { return g.pattern }

// Match reports whether u matches the pattern.
func (g *Glob) Match(u *url.URL) bool {
	if u == nil {
		return false
	}
	if g.pathOnly {
		return g.re.MatchString(u.Path)
	}
	return g.re.MatchString(u.String())
}

// MatchString matches a raw URL or path string.
func (g *Glob) MatchString(s string) bool {
	if g.pathOnly {
		if u, err := url.Parse(s); err == nil && u.Path != "" {
			s = u.Path
		}
	}
	return g.re.MatchString(s)
}

func globToRegexp(pattern string) (string, error) {
	var b strings.Builder
	b.WriteString("^")
	inGroup := false

	for i := 0; i < len(pattern); i++ {
		c := pattern[i]
		switch c {
		case '\\':
			if i+1 >= len(pattern) {
				return "", fmt.Errorf("trailing escape")
			}
			i++
			b.WriteString(regexp.QuoteMeta(pattern[i : i+1]))
		case '*':
			if i+1 < len(pattern) && pattern[i+1] == '*' {
				i++
				b.WriteString(".*")
			} else {
				b.WriteString("[^/]*")
			}
		case '?':
			b.WriteString("[^/]")
		case '{':
			if inGroup {
				return "", fmt.Errorf("nested '{' at offset %d", i)
			}
			inGroup = true
			b.WriteString("(?:")
		case '}':
			if !inGroup {
				return "", fmt.Errorf("unbalanced '}' at offset %d", i)
			}
			inGroup = false
			b.WriteString(")")
		case ',':
			if inGroup {
				b.WriteString("|")
			} else {
				b.WriteString(",")
			}
		default:
			b.WriteString(regexp.QuoteMeta(pattern[i : i+1]))
		}
	}
	if inGroup {
		return "", fmt.Errorf("unterminated '{'")
	}
	b.WriteString("$")
	return b.String(), nil
}
