package scanner

import (
	"path"
	"strings"
)

// defaultIgnorePatterns are always applied, under any user-configured
// patterns. They cover VCS metadata, dependency and build output
// trees, editor state, and files that commonly hold credentials.
var defaultIgnorePatterns = []string{
	".git/",
	".hg/",
	".svn/",
	"node_modules/",
	"vendor/",
	"target/",
	"dist/",
	"build/",
	"__pycache__/",
	".venv/",
	"venv/",
	".idea/",
	".vscode/",
	".DS_Store",
	".env",
	".env.*",
	"*.pem",
	"*.key",
	"*.p12",
	"*.pfx",
	"id_rsa",
	"id_ed25519",
	".npmrc",
	".netrc",
}

type ignoreRule struct {
	pattern string
	negate  bool
	dirOnly bool
	// anchored rules contain a slash and match against the full
	// relative path; unanchored rules match any path component name.
	anchored bool
}

// Rules is a compiled, layered ignore rule set. Later rules win, so
// user patterns can re-include (with a leading "!") what the defaults
// exclude.
type Rules struct {
	rules []ignoreRule
}

// NewRules compiles the built-in defaults layered under the given user
// patterns. Patterns are gitignore-flavored: a trailing "/" restricts
// to directories, a leading "!" re-includes, a pattern containing "/"
// matches the whole relative path, otherwise any single component.
func NewRules(userPatterns []string) *Rules {
	r := &Rules{}
	for _, p := range defaultIgnorePatterns {
		r.add(p)
	}
	for _, p := range userPatterns {
		r.add(p)
	}
	return r
}

func (r *Rules) add(raw string) {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.HasPrefix(raw, "#") {
		return
	}
	rule := ignoreRule{}
	if strings.HasPrefix(raw, "!") {
		rule.negate = true
		raw = raw[1:]
	}
	if strings.HasSuffix(raw, "/") {
		rule.dirOnly = true
		raw = strings.TrimSuffix(raw, "/")
	}
	raw = strings.TrimPrefix(raw, "/")
	if raw == "" {
		return
	}
	rule.anchored = strings.Contains(raw, "/")
	rule.pattern = raw
	r.rules = append(r.rules, rule)
}

// Match reports whether relPath (slash-separated, relative to the
// workspace root) is ignored. Last matching rule wins.
func (r *Rules) Match(relPath string, isDir bool) bool {
	if relPath == "" || relPath == "." {
		return false
	}
	ignored := false
	for _, rule := range r.rules {
		if rule.dirOnly && !isDir {
			continue
		}
		if rule.matches(relPath) {
			ignored = !rule.negate
		}
	}
	return ignored
}

func (rule ignoreRule) matches(relPath string) bool {
	if rule.anchored {
		ok, err := path.Match(rule.pattern, relPath)
		return err == nil && ok
	}
	// Unanchored: match the base name of the path.
	ok, err := path.Match(rule.pattern, path.Base(relPath))
	return err == nil && ok
}
