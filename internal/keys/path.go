// Package keys turns request paths into object-store keys.
package keys

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// DecodedPath is a request path split at its last separator.
type DecodedPath struct {
	Directory string
	Filename  string
}

// Decode splits path at its last '/'. With no separator the whole path is the
// filename. It never fails; "" decodes to an empty DecodedPath.
func Decode(path string) DecodedPath {
	i := strings.LastIndexByte(path, '/')
	if i < 0 {
		return DecodedPath{Filename: path}
	}
	return DecodedPath{
		Directory: path[:i],
		Filename:  path[i+1:],
	}
}

// segmentEscaper keeps the two characters whose decoded form is ambiguous
// inside a segment.
var segmentEscaper = strings.NewReplacer("%", "%25", "/", "%2F")

// Canonical rewrites an escaped request path (url.URL.EscapedPath without the
// leading '/') into the form keys are built from: every segment decoded,
// except '%' and '/' which stay escaped. Two paths map to the same canonical
// path only if they name the same segments.
func Canonical(escaped string) (string, error) {
	segs := strings.Split(escaped, "/")
	for i, seg := range segs {
		dec, err := url.PathUnescape(seg)
		if err != nil {
			return "", fmt.Errorf("keys: malformed path segment %q: %w", seg, err)
		}
		segs[i] = segmentEscaper.Replace(dec)
	}
	return strings.Join(segs, "/"), nil
}

// Directive is one filters:<name>(<args>) token. Args are opaque here and are
// forwarded verbatim to the transform engine.
type Directive struct {
	Name string `json:"name"`
	Args string `json:"args"`
}

// String renders the directive in request-path form.
func (d Directive) String() string {
	return "filters:" + d.Name + "(" + d.Args + ")"
}

// directivePattern matches filters:<name>(<args>) where args run to the first ')'.
var directivePattern = regexp.MustCompile(`filters:([A-Za-z0-9_]+)\(([^)]*)\)`)

// ParseDirectives returns every directive token in s, in order of appearance.
func ParseDirectives(s string) []Directive {
	matches := directivePattern.FindAllStringSubmatch(s, -1)
	if len(matches) == 0 {
		return nil
	}
	out := make([]Directive, 0, len(matches))
	for _, m := range matches {
		out = append(out, Directive{Name: m[1], Args: m[2]})
	}
	return out
}
