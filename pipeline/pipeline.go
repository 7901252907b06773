// Package pipeline sequences one content-acquisition request: robots
// gating, cache-first engine selection, specialty rerouting, the
// postprocessor chain, and error classification into one outcome.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/use-agent/harvest/cache"
	"github.com/use-agent/harvest/engine"
	"github.com/use-agent/harvest/models"
	"github.com/use-agent/harvest/parser"
	"github.com/use-agent/harvest/postproc"
)

// Downloader fetches a specialty payload to a local temp file when the
// answering engine only supplied a content-type hint.
type Downloader interface {
	Download(ctx context.Context, url string, headers map[string]string) (*Prefetch, error)
}

// RobotsChecker answers robots.txt allow/deny. A fetch failure must
// report allow; only an actual disallow verdict returns false.
type RobotsChecker interface {
	Allowed(ctx context.Context, url string) bool
}

// FrequencyRecorder receives best-effort scrape notifications,
// including which engine won, so per-domain engine preferences can be
// remembered.
type FrequencyRecorder interface {
	Record(url, html string, winner engine.Name)
}

// ErrorReporter receives unexpected failures for external tracking.
// Implementations must honor zero-data-retention by not storing the URL
// when told so.
type ErrorReporter interface {
	Report(err error, url string, zeroDataRetention bool)
}

// Config wires the pipeline's collaborators. Engines maps every
// configured engine by name; the pipeline never constructs engines.
type Config struct {
	Engines    map[engine.Name]engine.Engine
	Store      cache.Store // nil disables cache writes
	Chain      *postproc.Chain
	Robots     RobotsChecker     // nil disables robots gating
	Downloader Downloader        // required when hint-only engines are configured
	PDFParser  parser.Parser
	DocParser  parser.Parser
	Frequency  FrequencyRecorder // nil disables frequency recording
	Reporter   ErrorReporter     // nil disables external error tracking
	Logger     *slog.Logger
}

// Pipeline is the top-level request orchestrator.
type Pipeline struct {
	engines    map[engine.Name]engine.Engine
	configured []engine.Name
	store      cache.Store
	chain      *postproc.Chain
	robots     RobotsChecker
	downloader Downloader
	pdfParser  parser.Parser
	docParser  parser.Parser
	frequency  FrequencyRecorder
	reporter   ErrorReporter
	logger     *slog.Logger
}

// New builds a Pipeline from its collaborators.
func New(cfg Config) *Pipeline {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	chain := cfg.Chain
	if chain == nil {
		chain = postproc.DefaultChain()
	}
	var configured []engine.Name
	for name := range cfg.Engines {
		configured = append(configured, name)
	}
	return &Pipeline{
		engines:    cfg.Engines,
		configured: configured,
		store:      cfg.Store,
		chain:      chain,
		robots:     cfg.Robots,
		downloader: cfg.Downloader,
		pdfParser:  cfg.PDFParser,
		docParser:  cfg.DocParser,
		frequency:  cfg.Frequency,
		reporter:   cfg.Reporter,
		logger:     logger,
	}
}

// Response is the outcome of one pipeline run. Either Document is set
// (Success true) or Err is (Success false); UnsupportedFeatures lists
// silently degraded capabilities either way.
type Response struct {
	Success             bool
	Document            *models.Document
	UnsupportedFeatures []engine.FeatureFlag
	Err                 error
}

// ScrapeURL runs the full acquisition pipeline for one URL.
func (p *Pipeline) ScrapeURL(ctx context.Context, id, url string, opts models.ScrapeOptions, internal models.InternalOptions) *Response {
	opts.Defaults()
	meta := newMeta(ctx, id, url, opts, internal, p.logger)
	defer meta.Abort.Close()
	defer meta.Cleanup()

	doc, unsupported, err := p.run(meta)
	if err != nil {
		p.report(err, meta)
		meta.Logger.Error("scrape failed", "code", models.CodeFor(err), "error", err)
		return &Response{Success: false, UnsupportedFeatures: unsupported, Err: err}
	}

	meta.Logger.Info("scrape completed",
		"engine", meta.Winner(),
		"status", doc.Metadata.StatusCode,
		"cache_state", doc.Metadata.CacheState)
	return &Response{Success: true, Document: doc, UnsupportedFeatures: unsupported}
}

// report forwards unexpected failures to the external tracker. Known
// taxonomy errors are the caller's business, not an incident.
func (p *Pipeline) report(err error, meta *Meta) {
	if p.reporter == nil {
		return
	}
	if models.CodeFor(err) != models.ErrCodeInternal {
		return
	}
	p.reporter.Report(err, meta.TargetURL(), meta.Internal.ZeroDataRetention)
}

func (p *Pipeline) run(meta *Meta) (*models.Document, []engine.FeatureFlag, error) {
	if err := rejectUnderZeroDataRetention(meta); err != nil {
		return nil, nil, err
	}

	if meta.Internal.CheckRobots && p.robots != nil {
		if !p.robots.Allowed(meta.Abort.Context(), meta.TargetURL()) {
			return nil, nil, &models.RobotsDeniedError{URL: meta.TargetURL()}
		}
	}
	if err := meta.Abort.Check(); err != nil {
		return nil, nil, err
	}

	res, unsupported, err := p.acquire(meta)
	if err != nil {
		return nil, unsupported, err
	}

	// Cache hits skip specialty detection: cached entries are
	// pre-classified HTML.
	if meta.Winner() != engine.EngineIndex {
		res, err = p.reroute(meta, res)
		if err != nil {
			return nil, unsupported, err
		}
	}
	if err := meta.Abort.Check(); err != nil {
		return nil, unsupported, err
	}

	p.recordFrequency(meta, res)
	p.saveToCache(meta, res)

	doc := p.assemble(meta, res, unsupported)

	in := &postproc.Input{
		Options:  meta.Options,
		FinalURL: doc.Metadata.URL,
		Logger:   meta.Logger,
	}
	final := p.chain.Run(meta.Abort.Context(), in, *doc)
	if err := meta.Abort.Check(); err != nil {
		return nil, unsupported, err
	}

	trimToFormats(&final, meta.Options)
	return &final, unsupported, nil
}

// rejectUnderZeroDataRetention fails any request for artifacts that the
// retention policy forbids persisting, before any engine call.
func rejectUnderZeroDataRetention(meta *Meta) error {
	if !meta.Internal.ZeroDataRetention {
		return nil
	}
	if meta.Options.HasFormat(models.FormatScreenshot) {
		return &models.ZeroDataRetentionError{Artifact: "screenshot"}
	}
	for _, a := range meta.Options.Actions {
		switch a.Type {
		case models.ActionScreenshot, models.ActionPDF:
			return &models.ZeroDataRetentionError{Artifact: a.Type}
		}
	}
	return nil
}

// acquire selects and invokes the engine that will answer the request:
// forced override first, then the cache short-circuit, then the live
// priority order.
func (p *Pipeline) acquire(meta *Meta) (*engine.Result, []engine.FeatureFlag, error) {
	if forced := engine.Name(meta.Internal.ForceEngine); forced != "" {
		return p.acquireForced(meta, forced)
	}

	if engine.ShouldTryIndex(meta.Options, meta.Internal) {
		if res, ok, err := p.tryIndex(meta); err != nil {
			return nil, nil, err
		} else if ok {
			return res, nil, nil
		}
	}

	live := engine.SelectLiveEngine(p.configured)
	missing := engine.Unsupported(meta.Flags, live)
	if err := hardUnsupported(missing, live); err != nil {
		return nil, nil, err
	}

	res, err := p.invoke(meta, live)
	if err != nil {
		return nil, missing, err
	}
	return res, missing, nil
}

// acquireForced invokes exactly the named engine. Index errors are not
// swallowed here: forcing the cache engine means the caller wants the
// cache answer or the cache failure.
func (p *Pipeline) acquireForced(meta *Meta, forced engine.Name) (*engine.Result, []engine.FeatureFlag, error) {
	if _, ok := p.engines[forced]; !ok {
		return nil, nil, &models.EngineError{Engine: string(forced)}
	}

	missing := engine.Unsupported(meta.Flags, forced)
	if err := hardUnsupported(missing, forced); err != nil {
		return nil, nil, err
	}

	res, err := p.invoke(meta, forced)
	if err != nil {
		return nil, missing, err
	}
	if forced == engine.EngineIndex {
		res.CacheCreatedAt = nonZeroTime(res.CacheCreatedAt)
	}
	return res, missing, nil
}

// tryIndex attempts the cache engine. ok reports whether the cache
// answered; miss signals return (nil, false, nil) for silent fallback.
func (p *Pipeline) tryIndex(meta *Meta) (*engine.Result, bool, error) {
	idx, configured := p.engines[engine.EngineIndex]
	if !configured {
		return nil, false, nil
	}

	req := engine.BuildRequest(meta.TargetURL(), meta.Options, meta.Flags, p.engineTimeout(meta))
	res, err := idx.Scrape(meta.Abort.Context(), req)
	switch {
	case err == nil:
		meta.SetWinner(engine.EngineIndex)
		meta.Logger.Debug("served from index cache", "cached_at", res.CacheCreatedAt)
		return res, true, nil
	case models.IsCacheFallback(err):
		meta.Logger.Debug("index fallback", "reason", err)
		meta.MarkCacheMiss()
		return nil, false, nil
	default:
		return nil, false, err
	}
}

// invoke runs one engine with abort checks on both sides. When the
// abort coordinator has fired, its classified cause wins over whatever
// error the interrupted engine surfaced.
func (p *Pipeline) invoke(meta *Meta, name engine.Name) (*engine.Result, error) {
	eng, ok := p.engines[name]
	if !ok {
		return nil, &models.EngineError{Engine: string(name)}
	}
	if err := meta.Abort.Check(); err != nil {
		return nil, err
	}

	req := engine.BuildRequest(meta.TargetURL(), meta.Options, meta.Flags, p.engineTimeout(meta))
	res, err := eng.Scrape(meta.Abort.Context(), req)
	if abortErr := meta.Abort.Check(); abortErr != nil {
		return nil, abortErr
	}
	if err != nil {
		return nil, err
	}

	meta.SetWinner(name)
	if res.URL == "" {
		res.URL = meta.TargetURL()
	}
	return res, nil
}

// engineTimeout gives an engine the remaining request budget.
func (p *Pipeline) engineTimeout(meta *Meta) time.Duration {
	if remaining, ok := meta.Abort.Remaining(); ok {
		return remaining
	}
	return 0
}

// hardUnsupported turns non-degradable missing capabilities into
// failures. Actions and branding cannot be silently dropped; every
// other missing flag degrades with a warning.
func hardUnsupported(missing []engine.FeatureFlag, name engine.Name) error {
	for _, f := range missing {
		switch f {
		case engine.FlagActions:
			return &models.UnsupportedFeatureError{
				Code: models.ErrCodeActionsNotSupported, Feature: string(f), Engine: string(name),
			}
		case engine.FlagBranding:
			return &models.UnsupportedFeatureError{
				Code: models.ErrCodeBrandingNotSupported, Feature: string(f), Engine: string(name),
			}
		}
	}
	return nil
}

// reroute runs specialty detection on a live result and, when the
// payload is a PDF or office document, replaces the payload with the
// specialized parser's output.
func (p *Pipeline) reroute(meta *Meta, res *engine.Result) (*engine.Result, error) {
	if err := meta.Abort.Check(); err != nil {
		return nil, err
	}

	plan, err := detectSpecialty(res)
	if err != nil {
		return nil, &models.PrefetchError{Engine: string(meta.Winner()), ContentType: res.ContentType, Err: err}
	}
	if plan == nil {
		return res, nil
	}

	prefetch, err := p.ensurePrefetch(meta, res, plan)
	if err != nil {
		return nil, err
	}

	var sp parser.Parser
	switch plan.Kind {
	case SpecialtyPDF:
		meta.SetPDFPrefetch(prefetch)
		sp = p.pdfParser
	case SpecialtyDocument:
		meta.SetDocPrefetch(prefetch)
		sp = p.docParser
	}
	if sp == nil {
		return nil, &models.EngineError{Engine: string(meta.Winner()),
			Err: fmt.Errorf("no parser configured for %s content", plan.Kind)}
	}

	remaining, _ := meta.Abort.Remaining()
	parsed, err := sp.Parse(meta.Abort.Context(), &parser.Request{
		FilePath:   prefetch.FilePath,
		URL:        prefetch.URL,
		StatusCode: prefetch.StatusCode,
		MaxPages:   meta.Options.MaxPages,
		Remaining:  remaining,
	})
	if abortErr := meta.Abort.Check(); abortErr != nil {
		return nil, abortErr
	}
	if err != nil {
		return nil, err
	}

	// Replace the payload, keep the response provenance.
	res.HTML = parsed.HTML
	res.Markdown = parsed.Markdown
	res.ContentType = plan.ContentType
	res.NumPages = parsed.NumPages
	if parsed.Title != "" {
		res.Title = parsed.Title
	}
	return res, nil
}

// ensurePrefetch returns a prefetch descriptor for the specialty
// payload: the inline one when the engine supplied bytes, a dedicated
// re-download otherwise. The full browser backend is contractually
// required to deliver the payload inline, so a missing prefetch from it
// is a hard error rather than a re-download.
func (p *Pipeline) ensurePrefetch(meta *Meta, res *engine.Result, plan *SpecialtyPlan) (*Prefetch, error) {
	if plan.Prefetch != nil {
		return plan.Prefetch, nil
	}
	if meta.Winner() == engine.EngineBrowser {
		return nil, &models.PrefetchError{Engine: string(engine.EngineBrowser), ContentType: res.ContentType}
	}
	if p.downloader == nil {
		return nil, &models.PrefetchError{Engine: string(meta.Winner()), ContentType: res.ContentType,
			Err: fmt.Errorf("no downloader configured")}
	}

	prefetch, err := p.downloader.Download(meta.Abort.Context(), res.URL, meta.Options.Headers)
	if err != nil {
		return nil, &models.PrefetchError{Engine: string(meta.Winner()), ContentType: res.ContentType, Err: err}
	}
	return prefetch, nil
}

// recordFrequency fires the best-effort scrape notification. It runs
// detached from the request's cancellation and never affects outcome.
func (p *Pipeline) recordFrequency(meta *Meta, res *engine.Result) {
	if p.frequency == nil || res.HTML == "" {
		return
	}
	url, html, winner := res.URL, res.HTML, meta.Winner()
	go func() {
		defer func() {
			if r := recover(); r != nil {
				p.logger.Warn("frequency recording panicked", "url", url, "panic", r)
			}
		}()
		p.frequency.Record(url, html, winner)
	}()
}

// saveToCache writes a successful live result into the index store,
// best-effort and detached from the request deadline.
func (p *Pipeline) saveToCache(meta *Meta, res *engine.Result) {
	if p.store == nil || !meta.Internal.SaveToCache || meta.Internal.ZeroDataRetention {
		return
	}
	if meta.Winner() == engine.EngineIndex || res.HTML == "" || res.StatusCode >= 400 {
		return
	}

	entry := &cache.Entry{
		URL:         res.URL,
		HTML:        res.HTML,
		StatusCode:  res.StatusCode,
		ContentType: res.ContentType,
		Title:       res.Title,
		ProxyUsed:   string(res.ProxyUsed),
		CreatedAt:   time.Now(),
	}
	logger := meta.Logger
	key := cache.Key(meta.TargetURL())
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := p.store.Set(ctx, key, entry); err != nil {
			logger.Warn("cache write failed", "error", err)
		}
	}()
}

// assemble builds the pre-chain Document from the engine result.
func (p *Pipeline) assemble(meta *Meta, res *engine.Result, missing []engine.FeatureFlag) *models.Document {
	doc := &models.Document{
		RawHTML:           res.HTML,
		Markdown:          res.Markdown,
		Screenshot:        res.Screenshot,
		ActionScreenshots: res.ActionScreenshots,
	}
	doc.Metadata = models.DocumentMetadata{
		SourceURL:   meta.URL,
		URL:         res.URL,
		StatusCode:  res.StatusCode,
		Error:       res.Error,
		Title:       res.Title,
		NumPages:    res.NumPages,
		ContentType: res.ContentType,
		ProxyUsed:   res.ProxyUsed,
		EngineUsed:  string(meta.Winner()),
	}

	switch {
	case meta.Winner() == engine.EngineIndex:
		doc.Metadata.CacheState = "hit"
		doc.Metadata.CachedAt = res.CacheCreatedAt
	case meta.CacheMissed():
		doc.Metadata.CacheState = "miss"
	}

	if len(missing) > 0 {
		names := make([]string, len(missing))
		for i, f := range missing {
			names[i] = string(f)
		}
		doc.Metadata.AppendWarning(fmt.Sprintf(
			"engine %s does not support: %s.", meta.Winner(), strings.Join(names, ", ")))
	}
	return doc
}

// trimToFormats clears payload fields that were never requested. The
// working HTML and raw HTML are pipeline plumbing unless asked for.
func trimToFormats(doc *models.Document, opts models.ScrapeOptions) {
	if !opts.HasFormat(models.FormatRawHTML) {
		doc.RawHTML = ""
	}
	if !opts.HasFormat(models.FormatHTML) {
		doc.HTML = ""
	}
	if !opts.HasFormat(models.FormatMarkdown) {
		doc.Markdown = ""
	}
}

func nonZeroTime(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now()
	}
	return t
}
