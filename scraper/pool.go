package scraper

import (
	"log/slog"
	"math"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-rod/rod"
)

// pageHandle wraps a browser tab with health tracking metadata.
type pageHandle struct {
	page     *rod.Page
	errScore float64
	useCount int
	created  time.Time
	mu       sync.Mutex
}

func newPageHandle(page *rod.Page) *pageHandle {
	return &pageHandle{page: page, created: time.Now()}
}

// recordSuccess decreases the error score (min 0).
func (h *pageHandle) recordSuccess() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.useCount++
	h.errScore = math.Max(0, h.errScore-0.5)
}

// recordFailure increases the error score.
func (h *pageHandle) recordFailure() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.useCount++
	h.errScore += 1.0
}

// shouldRetire reports whether the tab should be replaced based on its
// health metrics: too many errors, too many uses, or too old.
func (h *pageHandle) shouldRetire() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.errScore >= 3.0 {
		return true
	}
	if h.useCount >= 50 {
		return true
	}
	if time.Since(h.created) >= 50*time.Minute {
		return true
	}
	return false
}

// PoolConfig holds sizing for the adaptive page pool.
type PoolConfig struct {
	MinPages     int
	HardMax      int
	MemThreshold float64 // 0.0-1.0, fraction of heap in use before shrinking
	ScaleStep    float64 // 0.0-1.0, fraction to grow/shrink per cycle
}

type pageFactory func() (*rod.Page, error)
type pageDestroyer func(*rod.Page)

// pagePool manages reusable browser tabs with automatic scaling based on
// memory pressure and utilization, retiring unhealthy tabs on return.
type pagePool struct {
	cfg       PoolConfig
	factory   pageFactory
	destroyer pageDestroyer

	idle    chan *pageHandle
	mu      sync.Mutex
	all     map[*pageHandle]struct{}
	active  atomic.Int32
	stopped chan struct{}
}

// newPagePool creates and starts the pool, pre-creating MinPages tabs.
func newPagePool(cfg PoolConfig, factory pageFactory, destroyer pageDestroyer) *pagePool {
	if cfg.MinPages < 1 {
		cfg.MinPages = 1
	}
	if cfg.HardMax < cfg.MinPages {
		cfg.HardMax = cfg.MinPages
	}
	if cfg.MemThreshold <= 0 {
		cfg.MemThreshold = 0.9
	}
	if cfg.ScaleStep <= 0 {
		cfg.ScaleStep = 0.05
	}

	pp := &pagePool{
		cfg:       cfg,
		factory:   factory,
		destroyer: destroyer,
		idle:      make(chan *pageHandle, cfg.HardMax),
		all:       make(map[*pageHandle]struct{}),
		stopped:   make(chan struct{}),
	}

	for i := 0; i < cfg.MinPages; i++ {
		h, err := pp.createHandle()
		if err != nil {
			slog.Warn("page pool: failed to pre-create tab", "error", err)
			continue
		}
		pp.idle <- h
	}

	go pp.scalingLoop()
	return pp
}

// get acquires a tab, creating one when under the hard max, otherwise
// blocking until one is returned.
func (pp *pagePool) get() (*pageHandle, error) {
	select {
	case h := <-pp.idle:
		pp.active.Add(1)
		return h, nil
	default:
	}

	pp.mu.Lock()
	if len(pp.all) < pp.cfg.HardMax {
		h, err := pp.createHandleLocked()
		pp.mu.Unlock()
		if err == nil {
			pp.active.Add(1)
			return h, nil
		}
	} else {
		pp.mu.Unlock()
	}

	h := <-pp.idle
	pp.active.Add(1)
	return h, nil
}

// put returns a tab. Unhealthy tabs are destroyed and, when the pool is
// below minimum, replaced with a fresh one.
func (pp *pagePool) put(h *pageHandle, success bool) {
	pp.active.Add(-1)

	if success {
		h.recordSuccess()
	} else {
		h.recordFailure()
	}

	if h.shouldRetire() {
		slog.Debug("page pool: retiring tab", "errScore", h.errScore, "useCount", h.useCount)
		pp.destroyHandle(h)

		pp.mu.Lock()
		if len(pp.all) < pp.cfg.MinPages {
			if fresh, err := pp.createHandleLocked(); err == nil {
				pp.mu.Unlock()
				pp.idle <- fresh
				return
			}
		}
		pp.mu.Unlock()
		return
	}

	pp.idle <- h
}

// size returns the total number of live tabs.
func (pp *pagePool) size() int {
	pp.mu.Lock()
	defer pp.mu.Unlock()
	return len(pp.all)
}

// activeCount returns the number of checked-out tabs.
func (pp *pagePool) activeCount() int {
	return int(pp.active.Load())
}

// stop shuts down the scaling goroutine and destroys every tab.
func (pp *pagePool) stop() {
	close(pp.stopped)

drain:
	for {
		select {
		case h := <-pp.idle:
			pp.destroyHandle(h)
		default:
			break drain
		}
	}

	pp.mu.Lock()
	for h := range pp.all {
		pp.destroyer(h.page)
		delete(pp.all, h)
	}
	pp.mu.Unlock()
}

func (pp *pagePool) createHandle() (*pageHandle, error) {
	pp.mu.Lock()
	defer pp.mu.Unlock()
	return pp.createHandleLocked()
}

func (pp *pagePool) createHandleLocked() (*pageHandle, error) {
	page, err := pp.factory()
	if err != nil {
		return nil, err
	}
	h := newPageHandle(page)
	pp.all[h] = struct{}{}
	return h, nil
}

func (pp *pagePool) destroyHandle(h *pageHandle) {
	pp.mu.Lock()
	delete(pp.all, h)
	pp.mu.Unlock()
	pp.destroyer(h.page)
}

// scalingLoop periodically samples memory and adjusts pool size.
func (pp *pagePool) scalingLoop() {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-pp.stopped:
			return
		case <-ticker.C:
			pp.scaleCheck()
		}
	}
}

func (pp *pagePool) scaleCheck() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	var memPressure float64
	if m.HeapSys > 0 {
		memPressure = float64(m.HeapInuse) / float64(m.HeapSys)
	}

	pp.mu.Lock()
	totalSize := len(pp.all)
	pp.mu.Unlock()

	active := int(pp.active.Load())
	var activeRate float64
	if totalSize > 0 {
		activeRate = float64(active) / float64(totalSize)
	}

	switch {
	case memPressure > pp.cfg.MemThreshold:
		shrinkCount := int(math.Ceil(float64(totalSize) * pp.cfg.ScaleStep))
		for i := 0; i < shrinkCount; i++ {
			pp.mu.Lock()
			if len(pp.all) <= pp.cfg.MinPages {
				pp.mu.Unlock()
				break
			}
			pp.mu.Unlock()

			select {
			case h := <-pp.idle:
				slog.Debug("page pool: shrinking under memory pressure")
				pp.destroyHandle(h)
			default:
				return
			}
		}
	case activeRate > 0.8:
		growCount := int(math.Ceil(float64(totalSize) * pp.cfg.ScaleStep))
		for i := 0; i < growCount; i++ {
			pp.mu.Lock()
			if len(pp.all) >= pp.cfg.HardMax {
				pp.mu.Unlock()
				break
			}
			h, err := pp.createHandleLocked()
			pp.mu.Unlock()
			if err != nil {
				slog.Warn("page pool: failed to grow", "error", err)
				break
			}
			slog.Debug("page pool: grew pool")
			pp.idle <- h
		}
	}
}
