package rules

import (
	"context"
	"net/http"
	"net/url"
	"path"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/spf13/afero"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"clashforge/internal/cache"
	"clashforge/internal/fetch"
	"clashforge/internal/model"
)

type Options struct {
	// Threads is the number of range requests per download.
	Threads int
	// SaveDir receives a cached copy of every downloaded rule file.
	SaveDir string
	// FailFast aborts the whole build on the first failed remote source.
	// Default is best-effort: a failed source contributes zero rules.
	FailFast bool
	// Timeout bounds each HTTP request; the context passed to Aggregate
	// bounds the whole build.
	Timeout time.Duration
	Logger  *zap.Logger
	Fs      afero.Fs
	// Client overrides the HTTP client (tests).
	Client *http.Client
}

// Result is the aggregated rule list: the sorted, deduplicated block
// followed by the final (catch-all) rules in declaration order. Count is the
// number of non-final rules.
type Result struct {
	Lines []string
	Count int
}

// Aggregate fans out over every configured rule source, normalizes and tags
// each produced line, and assembles the deterministic combined list.
func Aggregate(ctx context.Context, sources []model.RuleSource, opt Options) (*Result, error) {
	if opt.Logger == nil {
		opt.Logger = zap.NewNop()
	}
	if opt.Fs == nil {
		opt.Fs = afero.NewOsFs()
	}
	if opt.Threads < 1 {
		opt.Threads = 1
	}

	// One slot per source; workers never share mutable state, order across
	// sources is irrelevant because the sort imposes the final order.
	tagged := make([][]string, len(sources))
	g, gctx := errgroup.WithContext(ctx)
	for i, src := range sources {
		i, src := i, src
		switch src.Kind {
		case model.SourceRemote:
			g.Go(func() error {
				lines, err := remoteRules(gctx, src, opt)
				if err != nil {
					return err
				}
				tagged[i] = lines
				return nil
			})
		case model.SourceLocal:
			g.Go(func() error {
				tagged[i] = localRules(src, opt)
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var all []string
	for _, lines := range tagged {
		all = append(all, lines...)
	}
	sorted := SortDedup(all)
	count := len(sorted)

	for _, src := range sources {
		if src.Kind != model.SourceFinal {
			continue
		}
		if rule, ok := formatFinal(src.Template, src.Name); ok {
			sorted = append(sorted, rule)
		}
	}
	return &Result{Lines: sorted, Count: count}, nil
}

// remoteRules downloads one source, persists it under SaveDir and returns
// its tagged rule lines. Unless FailFast is set, a failed download degrades
// to an empty contribution; a cache write failure is always fatal.
func remoteRules(ctx context.Context, src model.RuleSource, opt Options) ([]string, error) {
	data, err := fetch.Ranged(ctx, src.URL, opt.Threads, fetch.Options{
		Timeout: opt.Timeout,
		Client:  opt.Client,
	})
	if err != nil {
		if opt.FailFast {
			return nil, err
		}
		opt.Logger.Warn("规则下载失败，该来源本次贡献为空",
			zap.String("name", src.Name),
			zap.String("url", src.URL),
			zap.Error(err))
		data = nil
	}

	savePath := filepath.Join(opt.SaveDir, fileNameFromURL(src.URL))
	status, err := cache.PersistIfChanged(opt.Fs, data, savePath)
	if err != nil {
		return nil, err
	}
	opt.Logger.Debug("规则文件缓存",
		zap.String("path", savePath),
		zap.String("status", status.String()))

	return tagLines(splitLines(string(data)), src.Name), nil
}

// localRules reads one local rule file. An unreadable file skips the source;
// it never fails the build.
func localRules(src model.RuleSource, opt Options) []string {
	if src.Path == "" {
		return nil
	}
	data, err := afero.ReadFile(opt.Fs, src.Path)
	if err != nil {
		opt.Logger.Warn("本地规则读取失败，跳过该来源",
			zap.String("name", src.Name),
			zap.String("path", src.Path),
			zap.Error(err))
		return nil
	}
	return tagLines(splitLines(string(data)), src.Name)
}

func splitLines(text string) []string {
	if text == "" {
		return nil
	}
	lines := strings.Split(text, "\n")
	for i := range lines {
		lines[i] = strings.TrimSuffix(lines[i], "\r")
	}
	return lines
}

// tagLines normalizes and tags every line of one source. CPU-bound and
// embarrassingly parallel: each worker owns a contiguous chunk and the
// per-chunk results are concatenated in order, so no lock is needed.
func tagLines(lines []string, tag string) []string {
	if len(lines) == 0 {
		return nil
	}
	workers := runtime.NumCPU()
	if workers > len(lines) {
		workers = len(lines)
	}
	chunk := (len(lines) + workers - 1) / workers
	parts := make([][]string, workers)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		lo := w * chunk
		hi := lo + chunk
		if hi > len(lines) {
			hi = len(lines)
		}
		if lo >= hi {
			break
		}
		wg.Add(1)
		go func(w, lo, hi int) {
			defer wg.Done()
			out := make([]string, 0, hi-lo)
			for _, line := range lines[lo:hi] {
				if rule, ok := formatRule(line, tag); ok {
					out = append(out, rule)
				}
			}
			parts[w] = out
		}(w, lo, hi)
	}
	wg.Wait()

	var out []string
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

// formatRule normalizes one line and appends the source tag. On IP rules
// the tag lands immediately before the no-resolve flag; on every other rule
// any stray no-resolve suffix is dropped and the tag is appended.
func formatRule(line, tag string) (string, bool) {
	rule, ok := Extract(line)
	if !ok || containsAny(rule, filterMarkers) {
		return "", false
	}
	if strings.HasPrefix(rule, string(model.RuleIPCIDR)) {
		if pos := strings.Index(rule, model.NoResolve); pos >= 0 {
			return rule[:pos] + "," + tag + rule[pos:], true
		}
		return rule + "," + tag, true
	}
	rule = strings.TrimSuffix(rule, model.NoResolve)
	if rule == "" {
		return "", false
	}
	return rule + "," + tag, true
}

// formatFinal rewrites one catch-all template. The "[]" placeholder marks
// the rule as final; FINAL becomes the canonical MATCH form, GEOSITE rules
// are already complete and pass through untagged.
func formatFinal(template, tag string) (string, bool) {
	if !strings.Contains(template, "[]") {
		return "", false
	}
	rule := strings.Replace(template, "[]", "", 1)
	switch {
	case strings.Contains(rule, model.NoResolve):
		pos := strings.Index(rule, model.NoResolve)
		return rule[:pos] + "," + tag + rule[pos:], true
	case strings.Contains(rule, "FINAL"):
		return string(model.RuleMatch) + "," + tag, true
	case strings.Contains(rule, string(model.RuleGeoSite)):
		return rule, true
	default:
		rule = strings.TrimSuffix(rule, ",")
		if rule == "" {
			return "", false
		}
		return rule + "," + tag, true
	}
}

// fileNameFromURL derives the cache filename for a downloaded rule file.
func fileNameFromURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Path == "" || u.Path == "/" {
		return "unknown"
	}
	name := path.Base(u.Path)
	if name == "." || name == "/" || name == "" {
		return "unknown"
	}
	return name
}
