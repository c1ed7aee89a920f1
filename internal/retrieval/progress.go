package retrieval

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
)

// DefaultProgressInterval is the reporting cadence when none is configured.
const DefaultProgressInterval = 1500 * time.Millisecond

// Progress is a snapshot of an in-flight transfer. Total is -1 when the
// server did not announce a length; Rate is in bytes per second.
type Progress struct {
	Loaded int64
	Total  int64
	Rate   float64
}

// Percent returns completion in [0,100], or -1 when the total is unknown.
func (p Progress) Percent() float64 {
	if p.Total <= 0 {
		return -1
	}
	pct := float64(p.Loaded) / float64(p.Total) * 100
	if pct > 100 {
		pct = 100
	}
	return pct
}

// String renders a percentage when the size is known, otherwise the byte
// count and transfer rate.
func (p Progress) String() string {
	if pct := p.Percent(); pct >= 0 {
		return fmt.Sprintf("%.1f%%", pct)
	}
	rate := uint64(0)
	if p.Rate > 0 {
		rate = uint64(p.Rate)
	}
	loaded := uint64(0)
	if p.Loaded > 0 {
		loaded = uint64(p.Loaded)
	}
	return humanize.Bytes(loaded) + " " + humanize.Bytes(rate) + "/s"
}

// countingWriter tracks bytes written for the progress ticker.
type countingWriter struct {
	n atomic.Int64
}

func (w *countingWriter) Write(p []byte) (int, error) {
	w.n.Add(int64(len(p)))
	return len(p), nil
}

// progressTicker invokes a callback on a fixed cadence until stopped. stop
// blocks until the goroutine has exited so no callback runs after it returns.
type progressTicker struct {
	done chan struct{}
	wg   sync.WaitGroup
	once sync.Once
}

func startProgressTicker(interval time.Duration, total int64, counter *countingWriter, report func(Progress)) *progressTicker {
	t := &progressTicker{done: make(chan struct{})}
	if report == nil {
		return t
	}
	if interval <= 0 {
		interval = DefaultProgressInterval
	}
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		last := int64(0)
		lastAt := time.Now()
		for {
			select {
			case <-t.done:
				return
			case now := <-ticker.C:
				loaded := counter.n.Load()
				elapsed := now.Sub(lastAt).Seconds()
				rate := 0.0
				if elapsed > 0 {
					rate = float64(loaded-last) / elapsed
				}
				last, lastAt = loaded, now
				report(Progress{Loaded: loaded, Total: total, Rate: rate})
			}
		}
	}()
	return t
}

func (t *progressTicker) stop() {
	t.once.Do(func() { close(t.done) })
	t.wg.Wait()
}
