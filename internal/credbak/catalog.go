package credbak

import (
	"path/filepath"
	"strings"
)

// RuleKind identifies which category of rule caused a file to match.
type RuleKind string

const (
	RuleName      RuleKind = "name"
	RuleExtension RuleKind = "extension"
	RuleKeyword   RuleKind = "keyword"
)

// Catalog is the immutable rule set the classifier evaluates against.
// Build one with DefaultCatalog (optionally merging extra rules from
// config) and pass it around by pointer; it is never mutated after load.
type Catalog struct {
	names      map[string]struct{}
	extensions []string
	keywords   []string

	skipDirs       map[string]struct{}
	skipNames      []string // glob patterns matched against the basename
	skipExtensions map[string]struct{}
}

// defaultNames are exact basenames that mark a file as secret-bearing
// regardless of content.
var defaultNames = []string{
	"secrets",
	"secret",
	"credentials",
	"credential",
	".env",
	".production.env",
	".staging.env",
	".development.env",
	".local.env",
	".secrets",
	".credentials",
	"secrets.json",
	"credentials.json",
	"config.json",
	"settings.json",
	"app.json",
	"database.json",
	"db.json",
	"auth.json",
	"api.json",
	"keys.json",
	"tokens.json",
	"auth.conf",
	"config.conf",
	"settings.conf",
	"service-account.json",
	"firebase.json",
	"google-services.json",
	"GoogleService-Info.plist",
	"keystore.jks",
	"keystore.p12",
	"cert.pem",
	"key.pem",
	"private.key",
	"public.key",
	"id_rsa",
	"id_ed25519",
	"id_ecdsa",
	"known_hosts",
	"authorized_keys",
}

// defaultExtensions are basename suffixes worth a content scan.
var defaultExtensions = []string{
	".env",
	".key",
	".pem",
	".p12",
	".jks",
	".json",
	".conf",
	".config",
	".ini",
	".yaml",
	".yml",
	".toml",
	".properties",
}

// defaultKeywords are case-insensitive substrings searched for in file
// contents. Only applied to small, text-decodable files.
var defaultKeywords = []string{
	"password",
	"passwd",
	"secret",
	"token",
	"api_key",
	"apikey",
	"access_key",
	"secret_key",
	"private_key",
	"certificate",
	"auth",
	"credential",
	"database_url",
	"connection_string",
	"client_secret",
}

// defaultSkipDirs are directory basenames pruned from the walk entirely.
// Build output, dependency caches and VCS internals never hold secrets
// worth backing up and dominate walk time when included.
var defaultSkipDirs = []string{
	".git", ".svn", ".hg", ".bzr",
	"node_modules", "bower_components", "vendor",
	"__pycache__", ".pytest_cache", ".venv", "venv",
	"dist", "build", "target", ".next", ".nuxt",
	".gradle", ".m2", ".cargo",
	".cache", ".sass-cache", "coverage", ".nyc_output",
	"tmp", "temp", "logs", "log", ".logs",
}

// defaultSkipNames are basename glob patterns excluded before
// classification runs: lockfiles and generated bundles match the .json
// and similar extension rules but never contain credentials.
var defaultSkipNames = []string{
	"package-lock.json",
	"yarn.lock",
	"pnpm-lock.yaml",
	"composer.lock",
	"Pipfile.lock",
	"poetry.lock",
	"Gemfile.lock",
	"go.sum",
	"Cargo.lock",
	"*.min.js",
	"*.min.css",
	"*.bundle.js",
	"*.chunk.js",
}

// defaultSkipExtensions exclude binary, media and archive formats.
var defaultSkipExtensions = []string{
	".log", ".tmp", ".cache",
	".pyc", ".pyo", ".so", ".dylib", ".dll", ".exe", ".bin", ".o", ".a",
	".zip", ".tar", ".gz", ".rar", ".7z",
	".jpg", ".jpeg", ".png", ".gif", ".bmp", ".svg", ".ico",
	".mp3", ".mp4", ".avi", ".mov",
	".pdf", ".doc", ".docx", ".xls", ".xlsx", ".ppt", ".pptx",
	".map",
}

// DefaultCatalog builds the built-in rule set, merging in any extra name
// patterns and keywords (typically from config). The result is safe for
// concurrent readers.
func DefaultCatalog(extraNames, extraKeywords []string) *Catalog {
	c := &Catalog{
		names:          make(map[string]struct{}, len(defaultNames)+len(extraNames)),
		extensions:     defaultExtensions,
		skipDirs:       make(map[string]struct{}, len(defaultSkipDirs)),
		skipNames:      defaultSkipNames,
		skipExtensions: make(map[string]struct{}, len(defaultSkipExtensions)),
	}
	for _, n := range defaultNames {
		c.names[n] = struct{}{}
	}
	for _, n := range extraNames {
		if n = strings.TrimSpace(n); n != "" {
			c.names[n] = struct{}{}
		}
	}
	c.keywords = make([]string, 0, len(defaultKeywords)+len(extraKeywords))
	c.keywords = append(c.keywords, defaultKeywords...)
	for _, k := range extraKeywords {
		if k = strings.TrimSpace(strings.ToLower(k)); k != "" {
			c.keywords = append(c.keywords, k)
		}
	}
	for _, d := range defaultSkipDirs {
		c.skipDirs[d] = struct{}{}
	}
	for _, e := range defaultSkipExtensions {
		c.skipExtensions[e] = struct{}{}
	}
	return c
}

// MatchName reports whether basename matches a name rule and returns the
// matched rule value. Name matching is a case-sensitive exact comparison.
func (c *Catalog) MatchName(basename string) (string, bool) {
	if _, ok := c.names[basename]; ok {
		return basename, true
	}
	return "", false
}

// MatchExtension reports whether basename matches an extension rule and
// returns the matched suffix. Comparison is case-insensitive, so API.Key
// matches .key.
func (c *Catalog) MatchExtension(basename string) (string, bool) {
	lower := strings.ToLower(basename)
	for _, ext := range c.extensions {
		if strings.HasSuffix(lower, ext) {
			return ext, true
		}
	}
	return "", false
}

// MatchKeyword searches content (already lowercased by the caller) for
// any keyword rule and returns the first keyword found.
func (c *Catalog) MatchKeyword(content string) (string, bool) {
	for _, kw := range c.keywords {
		if strings.Contains(content, kw) {
			return kw, true
		}
	}
	return "", false
}

// SkipDir reports whether a directory with the given basename should be
// pruned from the walk.
func (c *Catalog) SkipDir(basename string) bool {
	_, ok := c.skipDirs[basename]
	return ok
}

// SkipFile reports whether a file should be excluded before
// classification runs, based on its basename.
func (c *Catalog) SkipFile(basename string) bool {
	lower := strings.ToLower(basename)
	if _, ok := c.skipExtensions[strings.ToLower(filepath.Ext(basename))]; ok {
		return true
	}
	for _, pattern := range c.skipNames {
		matched, err := filepath.Match(strings.ToLower(pattern), lower)
		if err != nil {
			continue
		}
		if matched {
			return true
		}
	}
	return false
}
