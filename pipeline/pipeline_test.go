package pipeline

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/use-agent/harvest/engine"
	"github.com/use-agent/harvest/models"
	"github.com/use-agent/harvest/parser"
	"github.com/use-agent/harvest/postproc"
)

type fakeEngine struct {
	name  engine.Name
	res   *engine.Result
	err   error
	delay time.Duration
	calls int
}

func (f *fakeEngine) Name() engine.Name { return f.name }

func (f *fakeEngine) Scrape(ctx context.Context, req *engine.Request) (*engine.Result, error) {
	f.calls++
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	res := *f.res
	return &res, nil
}

type fakeParser struct {
	res     *parser.Result
	err     error
	gotPath string
	existed bool
}

func (f *fakeParser) Parse(_ context.Context, req *parser.Request) (*parser.Result, error) {
	f.gotPath = req.FilePath
	if _, err := os.Stat(req.FilePath); err == nil {
		f.existed = true
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.res, nil
}

func newTestPipeline(engines ...engine.Engine) (*Pipeline, map[engine.Name]*fakeEngine) {
	byName := make(map[engine.Name]engine.Engine)
	fakes := make(map[engine.Name]*fakeEngine)
	for _, e := range engines {
		byName[e.Name()] = e
		if f, ok := e.(*fakeEngine); ok {
			fakes[e.Name()] = f
		}
	}
	return New(Config{
		Engines: byName,
		Chain:   postproc.NewChain(),
	}), fakes
}

func htmlResult(url string) *engine.Result {
	return &engine.Result{
		URL:         url,
		HTML:        "<html><body><p>hello</p></body></html>",
		StatusCode:  200,
		ContentType: "text/html",
	}
}

func TestCacheHitShortCircuitsLiveEngine(t *testing.T) {
	idx := &fakeEngine{name: engine.EngineIndex, res: &engine.Result{
		URL:            "https://example.com",
		HTML:           "<html><body>cached</body></html>",
		StatusCode:     200,
		CacheCreatedAt: time.Now().Add(-time.Minute),
	}}
	live := &fakeEngine{name: engine.EngineHTTP, res: htmlResult("https://example.com")}
	p, fakes := newTestPipeline(idx, live)

	resp := p.ScrapeURL(context.Background(), "t1", "https://example.com",
		models.ScrapeOptions{MaxAge: 3600000, Formats: []models.Format{models.FormatRawHTML}},
		models.InternalOptions{SaveToCache: true})

	if !resp.Success {
		t.Fatalf("scrape failed: %v", resp.Err)
	}
	if fakes[engine.EngineHTTP].calls != 0 {
		t.Error("live engine was invoked despite cache hit")
	}
	if resp.Document.Metadata.CacheState != "hit" {
		t.Errorf("cache_state = %q, want \"hit\"", resp.Document.Metadata.CacheState)
	}
	if resp.Document.Metadata.CachedAt.IsZero() {
		t.Error("cached_at not set on a cache hit")
	}
}

func TestCacheMissFallsBackToLiveEngine(t *testing.T) {
	idx := &fakeEngine{name: engine.EngineIndex, err: models.ErrCacheMiss}
	live := &fakeEngine{name: engine.EngineHTTP, res: htmlResult("https://example.com")}
	p, fakes := newTestPipeline(idx, live)

	resp := p.ScrapeURL(context.Background(), "t2", "https://example.com",
		models.ScrapeOptions{MaxAge: 3600000, Formats: []models.Format{models.FormatRawHTML}},
		models.InternalOptions{SaveToCache: true})

	if !resp.Success {
		t.Fatalf("scrape failed: %v", resp.Err)
	}
	if got := fakes[engine.EngineHTTP].calls; got != 1 {
		t.Errorf("live engine invoked %d times, want exactly 1", got)
	}
	if resp.Document.Metadata.CacheState != "miss" {
		t.Errorf("cache_state = %q, want \"miss\"", resp.Document.Metadata.CacheState)
	}
}

func TestNoFreshDataFallsBackToLiveEngine(t *testing.T) {
	idx := &fakeEngine{name: engine.EngineIndex, err: models.ErrNoFreshData}
	live := &fakeEngine{name: engine.EngineHTTP, res: htmlResult("https://example.com")}
	p, fakes := newTestPipeline(idx, live)

	resp := p.ScrapeURL(context.Background(), "t3", "https://example.com",
		models.ScrapeOptions{MaxAge: 1000, Formats: []models.Format{models.FormatRawHTML}},
		models.InternalOptions{SaveToCache: true})

	if !resp.Success {
		t.Fatalf("scrape failed: %v", resp.Err)
	}
	if fakes[engine.EngineHTTP].calls != 1 {
		t.Error("live engine not invoked after stale cache")
	}
}

func TestCacheRealFailurePropagates(t *testing.T) {
	idx := &fakeEngine{name: engine.EngineIndex, err: errors.New("store exploded")}
	live := &fakeEngine{name: engine.EngineHTTP, res: htmlResult("https://example.com")}
	p, fakes := newTestPipeline(idx, live)

	resp := p.ScrapeURL(context.Background(), "t4", "https://example.com",
		models.ScrapeOptions{MaxAge: 3600000},
		models.InternalOptions{SaveToCache: true})

	if resp.Success {
		t.Fatal("expected failure when the cache store errors")
	}
	if fakes[engine.EngineHTTP].calls != 0 {
		t.Error("live engine invoked despite non-fallback cache failure")
	}
}

func TestForcedIndexSurfacesMiss(t *testing.T) {
	idx := &fakeEngine{name: engine.EngineIndex, err: models.ErrCacheMiss}
	live := &fakeEngine{name: engine.EngineHTTP, res: htmlResult("https://example.com")}
	p, fakes := newTestPipeline(idx, live)

	resp := p.ScrapeURL(context.Background(), "t5", "https://example.com",
		models.ScrapeOptions{MaxAge: 3600000},
		models.InternalOptions{SaveToCache: true, ForceEngine: string(engine.EngineIndex)})

	if resp.Success {
		t.Fatal("forcing the index engine must surface the miss, not fall back")
	}
	if !errors.Is(resp.Err, models.ErrCacheMiss) {
		t.Errorf("err = %v, want ErrCacheMiss", resp.Err)
	}
	if fakes[engine.EngineHTTP].calls != 0 {
		t.Error("live engine invoked despite forced index")
	}
}

func TestActionsUnsupportedFailsBeforeEngineCall(t *testing.T) {
	live := &fakeEngine{name: engine.EngineHTTP, res: htmlResult("https://example.com")}
	p, fakes := newTestPipeline(live)

	resp := p.ScrapeURL(context.Background(), "t6", "https://example.com",
		models.ScrapeOptions{Actions: []models.Action{{Type: models.ActionClick, Selector: "#go"}}},
		models.InternalOptions{})

	if resp.Success {
		t.Fatal("expected failure for actions on an engine without action support")
	}
	var featureErr *models.UnsupportedFeatureError
	if !errors.As(resp.Err, &featureErr) || featureErr.Code != models.ErrCodeActionsNotSupported {
		t.Errorf("err = %v, want ActionsNotSupported", resp.Err)
	}
	if fakes[engine.EngineHTTP].calls != 0 {
		t.Error("engine was invoked before the capability check failed")
	}
}

func TestBrandingUnsupportedFailsBeforeEngineCall(t *testing.T) {
	live := &fakeEngine{name: engine.EngineHeadless, res: htmlResult("https://example.com")}
	p, fakes := newTestPipeline(live)

	resp := p.ScrapeURL(context.Background(), "t7", "https://example.com",
		models.ScrapeOptions{Formats: []models.Format{models.FormatBranding}},
		models.InternalOptions{})

	if resp.Success {
		t.Fatal("expected failure for branding on an engine without branding support")
	}
	var featureErr *models.UnsupportedFeatureError
	if !errors.As(resp.Err, &featureErr) || featureErr.Code != models.ErrCodeBrandingNotSupported {
		t.Errorf("err = %v, want BrandingNotSupported", resp.Err)
	}
	if fakes[engine.EngineHeadless].calls != 0 {
		t.Error("engine was invoked before the capability check failed")
	}
}

func TestDegradableMissingFlagsBecomeWarnings(t *testing.T) {
	live := &fakeEngine{name: engine.EngineHTTP, res: htmlResult("https://example.com")}
	p, _ := newTestPipeline(live)

	resp := p.ScrapeURL(context.Background(), "t8", "https://example.com",
		models.ScrapeOptions{Mobile: true, Formats: []models.Format{models.FormatRawHTML}},
		models.InternalOptions{})

	if !resp.Success {
		t.Fatalf("scrape failed: %v", resp.Err)
	}
	if len(resp.UnsupportedFeatures) == 0 {
		t.Error("missing mobile capability not reported")
	}
	if resp.Document.Metadata.Warning == "" {
		t.Error("warning string not populated for degraded capability")
	}
}

func TestScrapeTimeoutClassifiedAsScrapeTier(t *testing.T) {
	live := &fakeEngine{name: engine.EngineHTTP, res: htmlResult("https://example.com"), delay: 200 * time.Millisecond}
	p, _ := newTestPipeline(live)

	resp := p.ScrapeURL(context.Background(), "t9", "https://example.com",
		models.ScrapeOptions{Timeout: 1},
		models.InternalOptions{})

	if resp.Success {
		t.Fatal("expected timeout failure")
	}
	var timeoutErr *models.TimeoutError
	if !errors.As(resp.Err, &timeoutErr) {
		t.Fatalf("err = %v (%T), want *models.TimeoutError", resp.Err, resp.Err)
	}
	if timeoutErr.Tier != models.TierScrape {
		t.Errorf("tier = %q, want scrape", timeoutErr.Tier)
	}
	if models.CodeFor(resp.Err) != models.ErrCodeTimeout {
		t.Errorf("code = %q, want %q", models.CodeFor(resp.Err), models.ErrCodeTimeout)
	}
}

func TestExternalCancellationCausePreserved(t *testing.T) {
	live := &fakeEngine{name: engine.EngineHTTP, res: htmlResult("https://example.com"), delay: 200 * time.Millisecond}
	p, _ := newTestPipeline(live)

	cause := errors.New("job superseded")
	ctx, cancel := context.WithCancelCause(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel(cause)
	}()

	resp := p.ScrapeURL(ctx, "t10", "https://example.com",
		models.ScrapeOptions{}, models.InternalOptions{})

	if resp.Success {
		t.Fatal("expected cancellation failure")
	}
	if !errors.Is(resp.Err, cause) {
		t.Errorf("err = %v, want the external cancellation cause verbatim", resp.Err)
	}
}

func TestSpecialtyPDFReroutedAndPrefetchCleaned(t *testing.T) {
	live := &fakeEngine{name: engine.EngineHTTP, res: &engine.Result{
		URL:           "https://example.com/report.pdf",
		StatusCode:    200,
		ContentType:   "application/pdf",
		BinaryPayload: []byte("%PDF-1.5 fake body"),
	}}
	pdf := &fakeParser{res: &parser.Result{
		HTML:     "<p>parsed pdf</p>",
		Markdown: "parsed pdf",
		Title:    "Report",
		NumPages: 3,
	}}

	byName := map[engine.Name]engine.Engine{engine.EngineHTTP: live}
	p := New(Config{Engines: byName, Chain: postproc.NewChain(), PDFParser: pdf})

	resp := p.ScrapeURL(context.Background(), "t11", "https://example.com/report.pdf",
		models.ScrapeOptions{Formats: []models.Format{models.FormatMarkdown}},
		models.InternalOptions{})

	if !resp.Success {
		t.Fatalf("scrape failed: %v", resp.Err)
	}
	if !pdf.existed {
		t.Error("prefetch file did not exist when the parser ran")
	}
	if resp.Document.Markdown != "parsed pdf" {
		t.Errorf("Markdown = %q, want parser output", resp.Document.Markdown)
	}
	if resp.Document.Metadata.NumPages != 3 {
		t.Errorf("NumPages = %d, want 3", resp.Document.Metadata.NumPages)
	}
	if resp.Document.Metadata.Title != "Report" {
		t.Errorf("Title = %q, want Report", resp.Document.Metadata.Title)
	}
	if _, err := os.Stat(pdf.gotPath); !os.IsNotExist(err) {
		t.Errorf("prefetch file %s still exists after pipeline return", pdf.gotPath)
	}
}

func TestSpecialtyPrefetchCleanedOnParserFailure(t *testing.T) {
	live := &fakeEngine{name: engine.EngineHTTP, res: &engine.Result{
		URL:           "https://example.com/broken.pdf",
		StatusCode:    200,
		ContentType:   "application/pdf",
		BinaryPayload: []byte("%PDF-1.5 truncated"),
	}}
	pdf := &fakeParser{err: errors.New("corrupt xref")}

	byName := map[engine.Name]engine.Engine{engine.EngineHTTP: live}
	p := New(Config{Engines: byName, Chain: postproc.NewChain(), PDFParser: pdf})

	resp := p.ScrapeURL(context.Background(), "t12", "https://example.com/broken.pdf",
		models.ScrapeOptions{}, models.InternalOptions{})

	if resp.Success {
		t.Fatal("expected parser failure to fail the request")
	}
	if pdf.gotPath == "" {
		t.Fatal("parser never received a prefetch path")
	}
	if _, err := os.Stat(pdf.gotPath); !os.IsNotExist(err) {
		t.Errorf("prefetch file %s still exists after failed pipeline", pdf.gotPath)
	}
}

func TestBrowserMissingInlinePayloadIsHardError(t *testing.T) {
	browser := &fakeEngine{name: engine.EngineBrowser, res: &engine.Result{
		URL:         "https://example.com/doc.pdf",
		StatusCode:  200,
		ContentType: "application/pdf",
		// No BinaryPayload: the browser backend is required to supply it.
	}}
	p, _ := newTestPipeline(browser)

	resp := p.ScrapeURL(context.Background(), "t13", "https://example.com/doc.pdf",
		models.ScrapeOptions{}, models.InternalOptions{})

	if resp.Success {
		t.Fatal("expected prefetch contract violation")
	}
	var prefetchErr *models.PrefetchError
	if !errors.As(resp.Err, &prefetchErr) {
		t.Errorf("err = %v (%T), want *models.PrefetchError", resp.Err, resp.Err)
	}
}

func TestHintOnlyEngineTriggersRedownload(t *testing.T) {
	live := &fakeEngine{name: engine.EngineHTTP, res: &engine.Result{
		URL:         "https://example.com/doc.pdf",
		StatusCode:  200,
		ContentType: "application/pdf",
	}}
	pdf := &fakeParser{res: &parser.Result{HTML: "<p>x</p>", Markdown: "x", NumPages: 1}}

	tmp, err := os.CreateTemp("", "harvest-prefetch-*")
	if err != nil {
		t.Fatal(err)
	}
	tmp.WriteString("%PDF-1.4")
	tmp.Close()

	dl := &fakeDownloader{prefetch: &Prefetch{
		FilePath: tmp.Name(), URL: "https://example.com/doc.pdf", StatusCode: 200, ContentType: "application/pdf",
	}}

	byName := map[engine.Name]engine.Engine{engine.EngineHTTP: live}
	p := New(Config{Engines: byName, Chain: postproc.NewChain(), PDFParser: pdf, Downloader: dl})

	resp := p.ScrapeURL(context.Background(), "t14", "https://example.com/doc.pdf",
		models.ScrapeOptions{}, models.InternalOptions{})

	if !resp.Success {
		t.Fatalf("scrape failed: %v", resp.Err)
	}
	if dl.calls != 1 {
		t.Errorf("downloader invoked %d times, want 1", dl.calls)
	}
	if _, err := os.Stat(tmp.Name()); !os.IsNotExist(err) {
		t.Errorf("re-downloaded prefetch file %s not cleaned up", tmp.Name())
	}
}

type fakeDownloader struct {
	prefetch *Prefetch
	calls    int
}

func (f *fakeDownloader) Download(context.Context, string, map[string]string) (*Prefetch, error) {
	f.calls++
	return f.prefetch, nil
}

func TestZeroDataRetentionRejectsScreenshotPreflight(t *testing.T) {
	live := &fakeEngine{name: engine.EngineBrowser, res: htmlResult("https://example.com")}
	p, fakes := newTestPipeline(live)

	resp := p.ScrapeURL(context.Background(), "t15", "https://example.com",
		models.ScrapeOptions{Formats: []models.Format{models.FormatScreenshot}},
		models.InternalOptions{ZeroDataRetention: true})

	if resp.Success {
		t.Fatal("expected zero-data-retention rejection")
	}
	var zdrErr *models.ZeroDataRetentionError
	if !errors.As(resp.Err, &zdrErr) {
		t.Errorf("err = %v, want *models.ZeroDataRetentionError", resp.Err)
	}
	if fakes[engine.EngineBrowser].calls != 0 {
		t.Error("engine invoked despite preflight rejection")
	}
}

func TestZeroDataRetentionRejectsPDFAction(t *testing.T) {
	live := &fakeEngine{name: engine.EngineBrowser, res: htmlResult("https://example.com")}
	p, _ := newTestPipeline(live)

	resp := p.ScrapeURL(context.Background(), "t16", "https://example.com",
		models.ScrapeOptions{Actions: []models.Action{{Type: models.ActionPDF}}},
		models.InternalOptions{ZeroDataRetention: true})

	if resp.Success {
		t.Fatal("expected zero-data-retention rejection for pdf action")
	}
	var zdrErr *models.ZeroDataRetentionError
	if !errors.As(resp.Err, &zdrErr) {
		t.Errorf("err = %v, want *models.ZeroDataRetentionError", resp.Err)
	}
}

type denyAllRobots struct{}

func (denyAllRobots) Allowed(context.Context, string) bool { return false }

func TestRobotsDenialIsHardFailure(t *testing.T) {
	live := &fakeEngine{name: engine.EngineHTTP, res: htmlResult("https://example.com")}
	byName := map[engine.Name]engine.Engine{engine.EngineHTTP: live}
	p := New(Config{Engines: byName, Chain: postproc.NewChain(), Robots: denyAllRobots{}})

	resp := p.ScrapeURL(context.Background(), "t17", "https://example.com",
		models.ScrapeOptions{}, models.InternalOptions{CheckRobots: true})

	if resp.Success {
		t.Fatal("expected robots denial")
	}
	var robotsErr *models.RobotsDeniedError
	if !errors.As(resp.Err, &robotsErr) {
		t.Errorf("err = %v, want *models.RobotsDeniedError", resp.Err)
	}
	if live.calls != 0 {
		t.Error("engine invoked despite robots denial")
	}
}

func TestUnknownForcedEngineIsEngineError(t *testing.T) {
	live := &fakeEngine{name: engine.EngineHTTP, res: htmlResult("https://example.com")}
	p, _ := newTestPipeline(live)

	resp := p.ScrapeURL(context.Background(), "t18", "https://example.com",
		models.ScrapeOptions{}, models.InternalOptions{ForceEngine: "quantum"})

	if resp.Success {
		t.Fatal("expected engine error for unknown forced engine")
	}
	var engErr *models.EngineError
	if !errors.As(resp.Err, &engErr) {
		t.Errorf("err = %v, want *models.EngineError", resp.Err)
	}
}

type fakeFrequency struct {
	recorded chan engine.Name
}

func (f *fakeFrequency) Record(_, _ string, winner engine.Name) {
	f.recorded <- winner
}

func TestFrequencyRecordsWinningEngine(t *testing.T) {
	live := &fakeEngine{name: engine.EngineHTTP, res: htmlResult("https://example.com")}
	freq := &fakeFrequency{recorded: make(chan engine.Name, 1)}

	p := New(Config{
		Engines:   map[engine.Name]engine.Engine{engine.EngineHTTP: live},
		Chain:     postproc.NewChain(),
		Frequency: freq,
	})

	resp := p.ScrapeURL(context.Background(), "t19", "https://example.com",
		models.ScrapeOptions{Formats: []models.Format{models.FormatRawHTML}},
		models.InternalOptions{})

	if !resp.Success {
		t.Fatalf("scrape failed: %v", resp.Err)
	}
	select {
	case winner := <-freq.recorded:
		if winner != engine.EngineHTTP {
			t.Errorf("recorded winner = %q, want %q", winner, engine.EngineHTTP)
		}
	case <-time.After(time.Second):
		t.Fatal("frequency recorder was never notified")
	}
}
