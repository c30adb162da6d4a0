package scan

import (
	"io"
	"io/fs"
	"path"
	"strings"
	"unicode/utf8"
)

// DefaultDenyDirs lists dependency caches, build outputs and VCS metadata directories.
var DefaultDenyDirs = []string{
	".git", ".hg", ".svn",
	"__pycache__", "node_modules", "vendor", ".venv", "venv", "env",
	".idea", ".vscode", ".vs",
	"dist", "build", "out", "target", "bin", "obj",
	".next", ".nuxt", "coverage", ".tox", ".mypy_cache", ".pytest_cache",
	".terraform", ".eggs", "*.egg-info",
}

const (
	defaultMaxFileBytes = 100_000
	defaultSampleBytes  = 8000
)

// Options controls filtering and traversal limits.
type Options struct {
	MaxFileBytes  int64    // per-file size ceiling; larger files are rejected
	SampleBytes   int      // bytes inspected for binary detection
	MaxFiles      int      // stop after this many included files (0 = unlimited)
	DenyDirs      []string // extra directory names or globs on top of DefaultDenyDirs
	IncludeHidden bool     // descend into dot-directories that are not deny-listed
}

func (o Options) withDefaults() Options {
	if o.MaxFileBytes <= 0 {
		o.MaxFileBytes = defaultMaxFileBytes
	}
	if o.SampleBytes <= 0 {
		o.SampleBytes = defaultSampleBytes
	}
	return o
}

type rejection int

const (
	accepted rejection = iota
	rejectDenied
	rejectSize
	rejectLanguage
	rejectBinary
)

// Filter decides which repository files are eligible for the prompt context.
// Paths are slash-separated and relative to the filesystem root.
type Filter struct {
	fsys      fs.FS
	opts      Options
	denyNames map[string]struct{}
	denyGlobs []string
}

// NewFilter builds a filter reading file samples from fsys.
func NewFilter(fsys fs.FS, opts Options) *Filter {
	opts = opts.withDefaults()
	f := &Filter{fsys: fsys, opts: opts, denyNames: make(map[string]struct{})}
	for _, name := range append(append([]string{}, DefaultDenyDirs...), opts.DenyDirs...) {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if strings.ContainsAny(name, "*?[") {
			f.denyGlobs = append(f.denyGlobs, name)
			continue
		}
		f.denyNames[name] = struct{}{}
	}
	return f
}

// IsIncluded reports whether the file at rel with the given size belongs in the context.
// Unreadable files are rejected.
func (f *Filter) IsIncluded(rel string, size int64) bool {
	_, r := f.admit(rel, size)
	if r != accepted {
		return false
	}
	sample, err := f.sample(rel)
	if err != nil {
		return false
	}
	return IsText(sample)
}

// SkipDir reports whether a directory with this base name is pruned from traversal.
func (f *Filter) SkipDir(name string) bool {
	if f.denied(name) {
		return true
	}
	return !f.opts.IncludeHidden && len(name) > 1 && strings.HasPrefix(name, ".")
}

// admit applies the path, size and language rules; binary detection is left to the caller.
func (f *Filter) admit(rel string, size int64) (string, rejection) {
	rel = path.Clean(strings.TrimPrefix(rel, "./"))
	segments := strings.Split(rel, "/")
	for i, seg := range segments {
		if f.denied(seg) {
			return "", rejectDenied
		}
		if i < len(segments)-1 && f.SkipDir(seg) {
			return "", rejectDenied
		}
	}
	if size <= 0 || size > f.opts.MaxFileBytes {
		return "", rejectSize
	}
	lang, ok := Language(rel)
	if !ok {
		return "", rejectLanguage
	}
	return lang, accepted
}

func (f *Filter) denied(name string) bool {
	if _, ok := f.denyNames[name]; ok {
		return true
	}
	for _, g := range f.denyGlobs {
		if ok, _ := path.Match(g, name); ok {
			return true
		}
	}
	return false
}

func (f *Filter) sample(rel string) ([]byte, error) {
	if f.fsys == nil {
		return nil, fs.ErrNotExist
	}
	file, err := f.fsys.Open(path.Clean(rel))
	if err != nil {
		return nil, err
	}
	defer file.Close()

	buf := make([]byte, f.opts.SampleBytes)
	n, err := io.ReadFull(file, buf)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return nil, err
	}
	return buf[:n], nil
}

// IsText reports whether sample looks like UTF-8 text: no NUL bytes and valid encoding,
// tolerating a multi-byte rune cut off at the end of the sample.
func IsText(sample []byte) bool {
	for i := 0; i < len(sample); {
		if sample[i] == 0 {
			return false
		}
		r, size := utf8.DecodeRune(sample[i:])
		if r == utf8.RuneError && size == 1 {
			return len(sample)-i < utf8.UTFMax && !utf8.FullRune(sample[i:])
		}
		i += size
	}
	return true
}
