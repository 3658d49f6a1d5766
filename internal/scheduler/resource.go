package scheduler

import (
	"runtime"
	"time"

	"github.com/localidx/fsindex/internal/events"
)

// sampleMemoryRatio reports heap bytes in use over the runtime's current
// total reserved heap, the same runtime.MemStats snapshot gopls' debug
// server uses to report memory (golang-tools gopls/internal/debug/serve.go),
// generalized here into a single 0..1 pressure ratio rather than a
// human-readable dump.
func sampleMemoryRatio() float64 {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	if m.Sys == 0 {
		return 0
	}
	return float64(m.HeapAlloc) / float64(m.Sys)
}

// resourceLoop samples memory/CPU every ~5s, emits resourceUsage, and
// auto-enqueues MEMORY_OPTIMIZE at High priority when pressure crosses
// the optimize threshold (spec.md §4.3).
func (s *Scheduler) resourceLoop() {
	ticker := time.NewTicker(s.cfg.ResourceSampleInterval)
	defer ticker.Stop()

	var lastCPUSample time.Time
	var lastNumGoroutine int

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			memRatio := s.sampler()
			cpuProxy := cpuProxy(&lastCPUSample, &lastNumGoroutine)

			s.mu.Lock()
			s.lastMemRatio = memRatio
			s.mu.Unlock()

			s.bus.Publish(events.Event{
				Kind:     events.ResourceUsage,
				Resource: &events.Resource{MemoryRatio: memRatio, CPUProxy: cpuProxy},
			})

			if memRatio > s.cfg.MemoryOptimizeRatio {
				s.Schedule(KindMemoryOptimize, nil, High)
			}
		}
	}
}

// cpuProxy derives a crude load proxy from the change in live goroutine
// count since the last sample, normalized to a 0..1-ish range — a stand-in
// for an OS-level CPU percentage, which Go's runtime does not expose
// without an external dependency this pack does not provide.
func cpuProxy(last *time.Time, lastGoroutines *int) float64 {
	now := time.Now()
	current := runtime.NumGoroutine()
	defer func() {
		*last = now
		*lastGoroutines = current
	}()
	if *lastGoroutines == 0 {
		return 0
	}
	delta := current - *lastGoroutines
	if delta < 0 {
		delta = 0
	}
	ratio := float64(delta) / float64(*lastGoroutines)
	if ratio > 1 {
		ratio = 1
	}
	return ratio
}
