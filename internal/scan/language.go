package scan

import (
	"path"
	"strings"
)

var extensionLanguages = map[string]string{
	".py":         "python",
	".js":         "javascript",
	".jsx":        "javascript",
	".ts":         "typescript",
	".tsx":        "typescript",
	".java":       "java",
	".kt":         "kotlin",
	".go":         "go",
	".rs":         "rust",
	".rb":         "ruby",
	".php":        "php",
	".cs":         "csharp",
	".cpp":        "cpp",
	".hpp":        "cpp",
	".c":          "c",
	".h":          "c",
	".swift":      "swift",
	".dart":       "dart",
	".scala":      "scala",
	".r":          "r",
	".sql":        "sql",
	".html":       "html",
	".css":        "css",
	".scss":       "scss",
	".yaml":       "yaml",
	".yml":        "yaml",
	".json":       "json",
	".xml":        "xml",
	".md":         "markdown",
	".txt":        "text",
	".sh":         "bash",
	".bat":        "batch",
	".ps1":        "powershell",
	".dockerfile": "dockerfile",
	".tf":         "terraform",
	".proto":      "protobuf",
	".graphql":    "graphql",
	".toml":       "toml",
	".ini":        "ini",
	".cfg":        "ini",
}

// Files recognised by name rather than extension.
var nameLanguages = map[string]string{
	"dockerfile": "dockerfile",
	"makefile":   "makefile",
}

// Suffixes that are never useful as prompt text even when the extension is known.
var skipSuffixes = []string{
	".png", ".jpg", ".jpeg", ".gif", ".bmp", ".ico", ".svg",
	".mp3", ".mp4", ".avi", ".wav", ".pdf", ".zip", ".tar",
	".gz", ".exe", ".dll", ".so", ".dylib", ".whl", ".pyc",
	".class", ".jar", ".lock", ".min.js", ".min.css",
}

// Language returns the language tag for a repository-relative path and whether the
// path is on the allow-list.
func Language(rel string) (string, bool) {
	base := strings.ToLower(path.Base(rel))
	for _, suffix := range skipSuffixes {
		if strings.HasSuffix(base, suffix) {
			return "", false
		}
	}
	if lang, ok := nameLanguages[base]; ok {
		return lang, true
	}
	// Dotfiles such as .env carry no extension of their own.
	if strings.HasPrefix(base, ".") && strings.Count(base, ".") == 1 {
		return "", false
	}
	lang, ok := extensionLanguages[path.Ext(base)]
	return lang, ok
}
