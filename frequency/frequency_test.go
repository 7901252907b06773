package frequency

import (
	"testing"
	"time"

	"github.com/use-agent/harvest/engine"
)

func TestRecordCountsHitsPerDomain(t *testing.T) {
	r := NewRecorder(time.Hour)
	defer r.Stop()

	r.Record("https://example.com/a", "<html><body><p>one</p></body></html>", engine.EngineHTTP)
	r.Record("https://example.com/b", "<html><body><p>one</p></body></html>", engine.EngineHTTP)
	r.Record("https://other.example/x", "<html><body><p>two</p></body></html>", engine.EngineHTTP)

	snap := r.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("got %d domains, want 2", len(snap))
	}

	byDomain := make(map[string]DomainSnapshot)
	for _, s := range snap {
		byDomain[s.Domain] = s
	}
	if byDomain["example.com"].Hits != 2 {
		t.Errorf("example.com hits = %d, want 2", byDomain["example.com"].Hits)
	}
	if byDomain["other.example"].Hits != 1 {
		t.Errorf("other.example hits = %d, want 1", byDomain["other.example"].Hits)
	}
}

func TestRecordDetectsContentChange(t *testing.T) {
	r := NewRecorder(time.Hour)
	defer r.Stop()

	stable := "<html><body><article><h1>News</h1><p>same content here</p></article></body></html>"
	r.Record("https://example.com/page", stable, engine.EngineHTTP)
	r.Record("https://example.com/page", stable, engine.EngineHTTP)
	r.Record("https://example.com/page", "<table><tr><td>totally</td><td>different</td></tr><tr><td>structure</td></tr></table>", engine.EngineHTTP)

	snap := r.Snapshot()
	if len(snap) != 1 {
		t.Fatalf("got %d domains, want 1", len(snap))
	}
	if snap[0].Changed != 1 {
		t.Errorf("changed = %d, want 1", snap[0].Changed)
	}
}

func TestRecordRemembersWinningEngine(t *testing.T) {
	r := NewRecorder(time.Hour)
	defer r.Stop()

	r.Record("https://example.com/a", "<p>x</p>", engine.EngineBrowser)
	if got := r.PreferredEngine("example.com"); got != engine.EngineBrowser {
		t.Fatalf("PreferredEngine = %q, want %q", got, engine.EngineBrowser)
	}

	// A later win by a different live engine replaces the preference.
	r.Record("https://example.com/b", "<p>y</p>", engine.EngineHTTP)
	if got := r.PreferredEngine("example.com"); got != engine.EngineHTTP {
		t.Fatalf("PreferredEngine = %q, want %q", got, engine.EngineHTTP)
	}

	// A cache-served result keeps the live preference intact.
	r.Record("https://example.com/c", "<p>z</p>", engine.EngineIndex)
	if got := r.PreferredEngine("example.com"); got != engine.EngineHTTP {
		t.Errorf("PreferredEngine after cache hit = %q, want %q", got, engine.EngineHTTP)
	}

	if got := r.PreferredEngine("unknown.example"); got != "" {
		t.Errorf("PreferredEngine for unknown domain = %q, want empty", got)
	}
}

func TestPreferredEngineExpires(t *testing.T) {
	r := NewRecorder(time.Nanosecond)
	defer r.Stop()

	r.Record("https://example.com/", "<p>x</p>", engine.EngineBrowser)
	time.Sleep(time.Millisecond)

	if got := r.PreferredEngine("example.com"); got != "" {
		t.Errorf("PreferredEngine after TTL = %q, want empty", got)
	}
	// Expired read also drops the entry.
	if snap := r.Snapshot(); len(snap) != 0 {
		t.Errorf("expired domain still present: %v", snap)
	}
}

func TestForgetDropsDomain(t *testing.T) {
	r := NewRecorder(time.Hour)
	defer r.Stop()

	r.Record("https://example.com/", "<p>x</p>", engine.EngineBrowser)
	r.Forget("example.com")

	if got := r.PreferredEngine("example.com"); got != "" {
		t.Errorf("PreferredEngine after Forget = %q, want empty", got)
	}
}

func TestPruneDropsExpiredDomains(t *testing.T) {
	r := NewRecorder(time.Millisecond)
	defer r.Stop()

	r.Record("https://example.com/", "<p>x</p>", engine.EngineHTTP)
	r.prune(time.Now().Add(time.Second))

	if snap := r.Snapshot(); len(snap) != 0 {
		t.Errorf("expired domain still present: %v", snap)
	}
}

func TestRecordIgnoresBadURL(t *testing.T) {
	r := NewRecorder(time.Hour)
	defer r.Stop()

	r.Record("://bad", "<p>x</p>", engine.EngineHTTP)
	if snap := r.Snapshot(); len(snap) != 0 {
		t.Errorf("bad URL recorded: %v", snap)
	}
}
