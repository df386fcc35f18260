package engine

import (
	"regexp"
	"sort"
	"strings"
)

// ResolveDependencies scans script text for imported modules and returns the
// installable package names, de-duplicated in first-seen order. Modules in
// the language's standard library are excluded, and module names are mapped
// through a per-language alias table where module and package names diverge
// (import cv2, pip install opencv-python).
//
// The resolver is stateless; filtering against already-installed packages is
// the caller's concern.
func ResolveDependencies(script, language string) []string {
	switch canonicalLanguage(language) {
	case "python":
		return resolvePython(script)
	case "javascript":
		return resolveJavaScript(script)
	}
	return nil
}

var (
	pythonImportRe = regexp.MustCompile(`(?m)^\s*import\s+([a-zA-Z0-9_.]+(?:\s*,\s*[a-zA-Z0-9_.]+)*)`)
	pythonFromRe   = regexp.MustCompile(`(?m)^\s*from\s+([a-zA-Z0-9_.]+)\s+import\b`)

	jsRequireRe = regexp.MustCompile(`\brequire\s*\(\s*['"]([^'"]+)['"]\s*\)`)
	jsImportRe  = regexp.MustCompile(`(?m)^\s*import\s+(?:[\w${},*\s]+\s+from\s+)?['"]([^'"]+)['"]`)
	jsDynamicRe = regexp.MustCompile(`\bimport\s*\(\s*['"]([^'"]+)['"]\s*\)`)
)

func resolvePython(script string) []string {
	// Both import styles are collected with their positions so first-seen
	// order holds across a script that mixes them.
	type importMatch struct {
		pos     int
		modules []string
	}
	var matches []importMatch

	for _, idx := range pythonImportRe.FindAllStringSubmatchIndex(script, -1) {
		var mods []string
		for _, part := range strings.Split(script[idx[2]:idx[3]], ",") {
			mods = append(mods, strings.TrimSpace(part))
		}
		matches = append(matches, importMatch{pos: idx[0], modules: mods})
	}
	for _, idx := range pythonFromRe.FindAllStringSubmatchIndex(script, -1) {
		matches = append(matches, importMatch{pos: idx[0], modules: []string{script[idx[2]:idx[3]]}})
	}

	sort.Slice(matches, func(i, j int) bool { return matches[i].pos < matches[j].pos })

	var modules []string
	for _, m := range matches {
		modules = append(modules, m.modules...)
	}

	var packages []string
	seen := make(map[string]bool)
	for _, module := range modules {
		top := strings.SplitN(module, ".", 2)[0]
		if top == "" || pythonStdlib[top] {
			continue
		}

		pkg := top
		if alias, ok := pythonPackageAliases[top]; ok {
			pkg = alias
		}
		if !seen[pkg] {
			seen[pkg] = true
			packages = append(packages, pkg)
		}
	}

	return packages
}

func resolveJavaScript(script string) []string {
	type importMatch struct {
		pos    int
		module string
	}
	var matches []importMatch

	for _, re := range []*regexp.Regexp{jsRequireRe, jsImportRe, jsDynamicRe} {
		for _, idx := range re.FindAllStringSubmatchIndex(script, -1) {
			matches = append(matches, importMatch{pos: idx[0], module: script[idx[2]:idx[3]]})
		}
	}

	sort.Slice(matches, func(i, j int) bool { return matches[i].pos < matches[j].pos })

	var modules []string
	for _, m := range matches {
		modules = append(modules, m.module)
	}

	var packages []string
	seen := make(map[string]bool)
	for _, module := range modules {
		pkg := normalizeJSPackage(module)
		if pkg == "" || nodeBuiltins[pkg] {
			continue
		}
		if !seen[pkg] {
			seen[pkg] = true
			packages = append(packages, pkg)
		}
	}

	return packages
}

// normalizeJSPackage reduces an import specifier to its installable package
// name: strips the node: prefix, drops subpaths, keeps scoped package pairs.
func normalizeJSPackage(specifier string) string {
	if strings.HasPrefix(specifier, "node:") {
		return strings.TrimPrefix(specifier, "node:")
	}
	// Relative and absolute paths are not installable.
	if strings.HasPrefix(specifier, ".") || strings.HasPrefix(specifier, "/") {
		return ""
	}

	parts := strings.Split(specifier, "/")
	if strings.HasPrefix(specifier, "@") {
		if len(parts) < 2 {
			return ""
		}
		return parts[0] + "/" + parts[1]
	}
	return parts[0]
}

// pythonPackageAliases maps module names to their installable packages
// where the two diverge.
var pythonPackageAliases = map[string]string{
	"bs4":      "beautifulsoup4",
	"cv2":      "opencv-python",
	"Crypto":   "pycryptodome",
	"dateutil": "python-dateutil",
	"docx":     "python-docx",
	"dotenv":   "python-dotenv",
	"fitz":     "PyMuPDF",
	"jwt":      "PyJWT",
	"magic":    "python-magic",
	"PIL":      "Pillow",
	"psycopg2": "psycopg2-binary",
	"serial":   "pyserial",
	"sklearn":  "scikit-learn",
	"yaml":     "PyYAML",
}

var pythonStdlib = makeSet(
	"abc", "argparse", "array", "ast", "asyncio", "atexit", "base64",
	"bisect", "builtins", "calendar", "collections", "concurrent",
	"configparser", "contextlib", "copy", "csv", "ctypes", "dataclasses",
	"datetime", "decimal", "difflib", "dis", "email", "enum", "errno",
	"fnmatch", "fractions", "functools", "gc", "getpass", "glob", "gzip",
	"hashlib", "heapq", "hmac", "html", "http", "importlib", "inspect",
	"io", "itertools", "json", "keyword", "logging", "math", "mimetypes",
	"multiprocessing", "numbers", "operator", "os", "pathlib", "pickle",
	"platform", "pprint", "queue", "random", "re", "secrets", "select",
	"shlex", "shutil", "signal", "site", "smtplib", "socket",
	"socketserver", "sqlite3", "stat", "statistics", "string", "struct",
	"subprocess", "sys", "sysconfig", "tarfile", "tempfile", "textwrap",
	"threading", "time", "timeit", "tokenize", "traceback", "types",
	"typing", "unicodedata", "unittest", "urllib", "uuid", "venv",
	"warnings", "weakref", "xml", "xmlrpc", "zipfile", "zlib", "zoneinfo",
)

var nodeBuiltins = makeSet(
	"assert", "async_hooks", "buffer", "child_process", "cluster",
	"console", "constants", "crypto", "dgram", "dns", "domain", "events",
	"fs", "http", "http2", "https", "inspector", "module", "net", "os",
	"path", "perf_hooks", "process", "punycode", "querystring", "readline",
	"repl", "stream", "string_decoder", "sys", "timers", "tls",
	"trace_events", "tty", "url", "util", "v8", "vm", "worker_threads",
	"zlib",
)

func makeSet(names ...string) map[string]bool {
	set := make(map[string]bool, len(names))
	for _, name := range names {
		set[name] = true
	}
	return set
}
