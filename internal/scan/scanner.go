package scan

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
)

// FileEntry is one included source file.
type FileEntry struct {
	Path     string `json:"path" yaml:"path"`
	Content  string `json:"-" yaml:"-"`
	Size     int64  `json:"size" yaml:"size"`
	Language string `json:"language" yaml:"language"`
}

// Metadata aggregates statistics about a scan.
type Metadata struct {
	TotalFiles       int            `json:"total_files" yaml:"total_files"`
	TotalSizeBytes   int64          `json:"total_size_bytes" yaml:"total_size_bytes"`
	Languages        map[string]int `json:"languages" yaml:"languages"`
	ExcludedFiles    int            `json:"excluded_files" yaml:"excluded_files"`
	FileLimitReached bool           `json:"file_limit_reached,omitempty" yaml:"file_limit_reached,omitempty"`
}

// Result is the immutable outcome of scanning one repository root.
type Result struct {
	Root      string      `json:"root" yaml:"root"`
	ScannedAt time.Time   `json:"scanned_at" yaml:"scanned_at"`
	Entries   []FileEntry `json:"files" yaml:"files"`
	Metadata  Metadata    `json:"metadata" yaml:"metadata"`
}

// Paths returns the included paths in scan order.
func (r *Result) Paths() []string {
	out := make([]string, 0, len(r.Entries))
	for _, e := range r.Entries {
		out = append(out, e.Path)
	}
	return out
}

// Scanner walks a repository tree and collects eligible text files.
type Scanner struct {
	opts   Options
	logger *zap.Logger
	now    func() time.Time
}

// ScannerOption customises a Scanner.
type ScannerOption func(*Scanner)

// WithLogger attaches a logger used for per-file debug output.
func WithLogger(l *zap.Logger) ScannerOption {
	return func(s *Scanner) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) ScannerOption {
	return func(s *Scanner) {
		if now != nil {
			s.now = now
		}
	}
}

// NewScanner constructs a scanner with the given limits.
func NewScanner(opts Options, options ...ScannerOption) *Scanner {
	s := &Scanner{opts: opts.withDefaults(), logger: zap.NewNop(), now: time.Now}
	for _, opt := range options {
		opt(s)
	}
	return s
}

// Scan traverses root in lexical order. Entries appear in traversal order and each
// entry satisfies the filter rules. Files that fail to read are counted as excluded.
func (s *Scanner) Scan(ctx context.Context, root string) (*Result, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, &Error{Kind: KindNotFound, Root: root, Err: err}
	}
	if err := checkRoot(abs); err != nil {
		return nil, err
	}

	fsys := os.DirFS(abs)
	filter := NewFilter(fsys, s.opts)
	res := &Result{
		Root:      abs,
		ScannedAt: s.now().UTC(),
		Metadata:  Metadata{Languages: make(map[string]int)},
	}

	walkErr := fs.WalkDir(fsys, ".", func(p string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			if p == "." {
				return err
			}
			s.logger.Debug("skip unreadable path", zap.String("path", p), zap.Error(err))
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			res.Metadata.ExcludedFiles++
			return nil
		}
		if d.IsDir() {
			if p != "." && filter.SkipDir(d.Name()) {
				return fs.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			res.Metadata.ExcludedFiles++
			return nil
		}
		lang, reason := filter.admit(p, info.Size())
		var content string
		if reason == accepted {
			content, reason = s.read(fsys, p)
		}
		if reason != accepted {
			res.Metadata.ExcludedFiles++
			return nil
		}
		// The cap only counts as reached once another includable file turns up.
		if s.opts.MaxFiles > 0 && len(res.Entries) >= s.opts.MaxFiles {
			res.Metadata.FileLimitReached = true
			return fs.SkipAll
		}
		res.Entries = append(res.Entries, FileEntry{
			Path:     p,
			Content:  content,
			Size:     info.Size(),
			Language: lang,
		})
		res.Metadata.TotalSizeBytes += info.Size()
		res.Metadata.Languages[lang]++
		return nil
	})
	if walkErr != nil {
		if errors.Is(walkErr, context.Canceled) || errors.Is(walkErr, context.DeadlineExceeded) {
			return nil, walkErr
		}
		return nil, classify(abs, walkErr)
	}

	res.Metadata.TotalFiles = len(res.Entries)
	if res.Metadata.TotalFiles == 0 {
		return nil, &Error{Kind: KindEmptyRepository, Root: abs}
	}
	s.logger.Debug("scan complete",
		zap.String("root", abs),
		zap.Int("files", res.Metadata.TotalFiles),
		zap.Int("excluded", res.Metadata.ExcludedFiles),
		zap.Int64("bytes", res.Metadata.TotalSizeBytes),
	)
	return res, nil
}

// read loads p and returns its content when it decodes as non-blank text.
func (s *Scanner) read(fsys fs.FS, p string) (string, rejection) {
	data, err := fs.ReadFile(fsys, p)
	if err != nil {
		s.logger.Debug("skip unreadable file", zap.String("path", p), zap.Error(err))
		return "", rejectBinary
	}
	sample := data
	if len(sample) > s.opts.SampleBytes {
		sample = sample[:s.opts.SampleBytes]
	}
	if !IsText(sample) {
		return "", rejectBinary
	}
	content := strings.ToValidUTF8(string(data), "\uFFFD")
	if strings.TrimSpace(content) == "" {
		return "", rejectSize
	}
	return content, accepted
}

func checkRoot(abs string) error {
	info, err := os.Stat(abs)
	if err != nil {
		return classify(abs, err)
	}
	if !info.IsDir() {
		return &Error{Kind: KindNotFound, Root: abs, Err: errors.New("not a directory")}
	}
	f, err := os.Open(abs)
	if err != nil {
		return classify(abs, err)
	}
	defer f.Close()
	if _, err := f.Readdirnames(1); err != nil && !errors.Is(err, io.EOF) {
		return classify(abs, err)
	}
	return nil
}

func classify(abs string, err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return &Error{Kind: KindNotFound, Root: abs, Err: err}
	}
	// Any other failure to read the root means it cannot be listed.
	return &Error{Kind: KindPermissionDenied, Root: abs, Err: err}
}
