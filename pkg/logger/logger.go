// Package logger collapses repeated identical log lines. An idle tracker
// emits "no eligible products" every cycle; one line with a counter is
// enough.
package logger

import (
	"fmt"
	"log"
	"sync"
	"time"
)

var dedup = &deduplicator{
	flushDelay: 2 * time.Second,
}

type deduplicator struct {
	mu         sync.Mutex
	lastMsg    string
	count      int
	flushDelay time.Duration
	timer      *time.Timer
}

func (d *deduplicator) flushLocked() {
	if d.count == 0 {
		return
	}
	if d.count == 1 {
		log.Print(d.lastMsg)
	} else {
		log.Printf("%s (x%d)", d.lastMsg, d.count)
	}
	d.count = 0
	d.lastMsg = ""
}

func (d *deduplicator) scheduleFlush() {
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.flushDelay, func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		d.flushLocked()
	})
}

// Dedup logs like log.Printf but coalesces consecutive identical messages
// into one line with a repeat counter.
func Dedup(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)

	dedup.mu.Lock()
	defer dedup.mu.Unlock()

	if msg == dedup.lastMsg {
		dedup.count++
		dedup.scheduleFlush()
		return
	}

	dedup.flushLocked()
	dedup.lastMsg = msg
	dedup.count = 1
	dedup.scheduleFlush()
}

// Flush writes any pending coalesced line. Call on shutdown so counts are
// not lost.
func Flush() {
	dedup.mu.Lock()
	defer dedup.mu.Unlock()
	if dedup.timer != nil {
		dedup.timer.Stop()
	}
	dedup.flushLocked()
}
