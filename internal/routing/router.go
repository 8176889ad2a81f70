package routing

import "strings"

type Class string

const (
	Public    Class = "public"
	Protected Class = "protected"
	AuthOnly  Class = "auth"
)

// Rules lists path prefixes per class. Exact lists come from configuration.
type Rules struct {
	API       []string
	Protected []string
	AuthOnly  []string
}

type Classifier struct {
	api       []string
	protected []string
	authOnly  []string
}

func New(rules Rules) *Classifier {
	return &Classifier{
		api:       normalize(rules.API),
		protected: normalize(rules.Protected),
		authOnly:  normalize(rules.AuthOnly),
	}
}

// IsAPI reports whether path lives under one of the API prefixes.
func (c *Classifier) IsAPI(path string) bool {
	return matchAny(c.api, path)
}

// Classify returns the routing class of path. Protected wins over auth-only
// when both match.
func (c *Classifier) Classify(path string) Class {
	switch {
	case matchAny(c.protected, path):
		return Protected
	case matchAny(c.authOnly, path):
		return AuthOnly
	default:
		return Public
	}
}

func normalize(prefixes []string) []string {
	out := make([]string, 0, len(prefixes))
	for _, p := range prefixes {
		p = strings.TrimSuffix(strings.TrimSpace(p), "/")
		if p == "" {
			p = "/"
		}
		if !strings.HasPrefix(p, "/") {
			p = "/" + p
		}
		out = append(out, p)
	}
	return out
}

// matchAny matches on path segment boundaries: "/api" covers "/api" and
// "/api/x" but not "/apix".
func matchAny(prefixes []string, path string) bool {
	for _, prefix := range prefixes {
		if prefix == "/" || path == prefix || strings.HasPrefix(path, prefix+"/") {
			return true
		}
	}
	return false
}
