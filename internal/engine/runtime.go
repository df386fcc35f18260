package engine

// Runtime describes how to execute and install packages for one supported
// interpreted language.
type Runtime struct {
	// Name is the canonical language tag.
	Name string

	// Extension is the workspace file extension, including the dot.
	Extension string

	// Command is the interpreter argv prefix; the script path is appended.
	Command []string

	// InstallCommand is the package installer argv prefix; the package
	// name is appended. Empty when the runtime has no installer.
	InstallCommand []string
}

// builtinRuntimes maps language tags (including aliases) to runtimes.
// The -u / unbuffered flags matter: output must arrive line-by-line while
// the process runs, not in one flush at exit.
var builtinRuntimes = map[string]*Runtime{
	"python": {
		Name:           "python",
		Extension:      ".py",
		Command:        []string{"python3", "-u"},
		InstallCommand: []string{"pip3", "install", "--quiet", "--disable-pip-version-check"},
	},
	"javascript": {
		Name:           "javascript",
		Extension:      ".js",
		Command:        []string{"node"},
		InstallCommand: []string{"npm", "install", "--global", "--silent"},
	},
}

var runtimeAliases = map[string]string{
	"python3": "python",
	"py":      "python",
	"js":      "javascript",
	"node":    "javascript",
	"nodejs":  "javascript",
}

// LookupRuntime resolves a language tag to a runtime.
func LookupRuntime(language string) (*Runtime, bool) {
	if canonical, ok := runtimeAliases[language]; ok {
		language = canonical
	}
	rt, ok := builtinRuntimes[language]
	return rt, ok
}
