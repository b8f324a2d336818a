// SPDX-License-Identifier: Apache-2.0

package alloc

import (
	"fmt"
	"path/filepath"
	"runtime"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// LeakRecord describes one outstanding allocation observed by a LeakDetector.
type LeakRecord struct {
	// Tag identifies the allocation site: by default the file:line of the
	// Allocate call, or whatever the caller passed to AllocateTagged.
	Tag   string
	Size  uintptr
	Align uintptr
}

// LeakDetector decorates an Allocator with allocate/deallocate pairing
// checks. Every Allocate records the block; a matching Deallocate removes the
// record; Report lists what is still live. A Deallocate for a block the
// detector never saw, or saw freed already, is a double free or foreign free
// and panics after logging, since execution past that point cannot be trusted.
//
// The record table is mutex-guarded so the detector is as thread-safe as the
// allocator it wraps.
type LeakDetector struct {
	inner  Allocator
	logger *zap.Logger

	mu      sync.Mutex
	records map[uintptr]LeakRecord
}

// LeakDetectorOption configures a LeakDetector.
type LeakDetectorOption func(*LeakDetector)

// WithLogger routes leak reports and double-free diagnostics to logger.
// Without it the detector stays silent and only Report's return value and
// panics carry the findings.
func WithLogger(logger *zap.Logger) LeakDetectorOption {
	return func(d *LeakDetector) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// NewLeakDetector wraps inner with allocation tracking.
func NewLeakDetector(inner Allocator, opts ...LeakDetectorOption) *LeakDetector {
	d := &LeakDetector{
		inner:   inner,
		logger:  zap.NewNop(),
		records: make(map[uintptr]LeakRecord),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Allocate satisfies the Allocator interface, tagging the record with the
// caller's file:line.
func (d *LeakDetector) Allocate(size, align uintptr) (Block, error) {
	return d.allocate(callerTag(2), size, align)
}

// AllocateTagged is Allocate with an explicit tag, for callers that want
// records keyed by request id or test name instead of source location.
func (d *LeakDetector) AllocateTagged(tag string, size, align uintptr) (Block, error) {
	return d.allocate(tag, size, align)
}

func (d *LeakDetector) allocate(tag string, size, align uintptr) (Block, error) {
	b, err := d.inner.Allocate(size, align)
	if err != nil {
		return Block{}, err
	}
	d.mu.Lock()
	d.records[b.addr()] = LeakRecord{Tag: tag, Size: b.size, Align: b.align}
	d.mu.Unlock()
	return b, nil
}

// Deallocate satisfies the Allocator interface. Freeing a block without a
// live record is fatal.
func (d *LeakDetector) Deallocate(b Block) {
	if b.IsZero() {
		return
	}
	d.mu.Lock()
	_, ok := d.records[b.addr()]
	if ok {
		delete(d.records, b.addr())
	}
	d.mu.Unlock()
	if !ok {
		d.logger.Error("free of untracked block",
			zap.Uintptr("addr", b.addr()),
			zap.Uint64("size", uint64(b.size)),
		)
		panic(fmt.Sprintf("alloc: free of untracked block at %#x (double free or foreign block)", b.addr()))
	}
	d.inner.Deallocate(b)
}

// Resize satisfies the Allocator interface, keeping the record's size in
// sync with in-place changes.
func (d *LeakDetector) Resize(b *Block, newSize uintptr) bool {
	if !d.inner.Resize(b, newSize) {
		return false
	}
	d.mu.Lock()
	if r, ok := d.records[b.addr()]; ok {
		r.Size = b.size
		d.records[b.addr()] = r
	}
	d.mu.Unlock()
	return true
}

// Report returns a record for every allocation still live, sorted by tag
// then size for deterministic output, and logs each one. An empty result is
// the expected terminal state of a correct run. Report does not clear the
// table, so it can be called repeatedly as teardown progresses.
func (d *LeakDetector) Report() []LeakRecord {
	d.mu.Lock()
	leaks := make([]LeakRecord, 0, len(d.records))
	for _, r := range d.records {
		leaks = append(leaks, r)
	}
	d.mu.Unlock()

	sort.Slice(leaks, func(i, j int) bool {
		if leaks[i].Tag != leaks[j].Tag {
			return leaks[i].Tag < leaks[j].Tag
		}
		return leaks[i].Size < leaks[j].Size
	})
	for _, r := range leaks {
		d.logger.Warn("leaked allocation",
			zap.String("tag", r.Tag),
			zap.Uint64("size", uint64(r.Size)),
			zap.Uint64("align", uint64(r.Align)),
		)
	}
	return leaks
}

// callerTag renders the allocation site skip frames above this function.
func callerTag(skip int) string {
	_, file, line, ok := runtime.Caller(skip)
	if !ok {
		return "unknown"
	}
	return fmt.Sprintf("%s:%d", filepath.Base(file), line)
}
