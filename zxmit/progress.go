package zxmit

import (
	"sync"
	"time"
)

// Progress is emitted once per acknowledged frame.
type Progress struct {
	// Block is the 1-based index of the frame just completed
	Block int

	// Blocks is the number of frames in the transfer
	Blocks int

	// Sent is the cumulative number of bytes put on the wire, headers
	// included, after compression
	Sent int64

	// Total is the size of the source
	Total int64

	// Seq is the sequence number of the completed frame
	Seq byte

	// Compressed reports whether the frame's payload was compressed
	Compressed bool
}

// Fraction returns the share of frames completed, between 0 and 1.
func (p Progress) Fraction() float64 {
	if p.Blocks == 0 {
		return 1
	}
	return float64(p.Block) / float64(p.Blocks)
}

// Done reports whether this is the last frame of the transfer.
func (p Progress) Done() bool {
	return p.Block == p.Blocks
}

// Ratio returns wire bytes over source bytes.
func (p Progress) Ratio() float64 {
	if p.Total == 0 {
		return 0
	}
	return float64(p.Sent) / float64(p.Total)
}

// ProgressTracker tracks transfer progress and invokes progress callbacks.
type ProgressTracker struct {
	mu sync.Mutex

	last       Progress
	startTime  time.Time
	lastUpdate time.Time
	lastSent   int64

	callback       func(Progress, float64)
	updateInterval time.Duration
}

// NewProgressTracker creates a new progress tracker. The callback receives
// the latest event and the wire rate in bytes per second.
func NewProgressTracker(callback func(Progress, float64), interval time.Duration) *ProgressTracker {
	if interval <= 0 {
		interval = 100 * time.Millisecond // Default: update every 100ms
	}

	return &ProgressTracker{
		callback:       callback,
		updateInterval: interval,
	}
}

// Start begins tracking a new transfer.
func (pt *ProgressTracker) Start() {
	pt.mu.Lock()
	defer pt.mu.Unlock()

	pt.last = Progress{}
	pt.startTime = time.Now()
	pt.lastUpdate = pt.startTime
	pt.lastSent = 0
}

// Update records p and invokes the callback if enough time has passed or
// the transfer just finished.
func (pt *ProgressTracker) Update(p Progress) {
	pt.mu.Lock()
	defer pt.mu.Unlock()

	pt.last = p

	now := time.Now()
	if now.Sub(pt.lastUpdate) < pt.updateInterval && !p.Done() {
		return
	}

	elapsed := now.Sub(pt.lastUpdate).Seconds()
	var rate float64
	if elapsed > 0 {
		rate = float64(p.Sent-pt.lastSent) / elapsed
	}

	if pt.callback != nil {
		pt.callback(p, rate)
	}

	pt.lastUpdate = now
	pt.lastSent = p.Sent
}

// Complete marks the transfer as complete and returns the duration.
func (pt *ProgressTracker) Complete() time.Duration {
	pt.mu.Lock()
	defer pt.mu.Unlock()

	return time.Since(pt.startTime)
}

// Stats returns the last event, the average wire rate and the elapsed time.
func (pt *ProgressTracker) Stats() (last Progress, rate float64, duration time.Duration) {
	pt.mu.Lock()
	defer pt.mu.Unlock()

	last = pt.last
	duration = time.Since(pt.startTime)
	if duration.Seconds() > 0 {
		rate = float64(last.Sent) / duration.Seconds()
	}
	return
}
