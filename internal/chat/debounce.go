package chat

import "time"

// DefaultDebounce bounds the content-frame rate for streaming turns.
const DefaultDebounce = 10 * time.Millisecond

// debouncer coalesces cumulative snapshots arriving faster than the
// interval. Snapshots are cumulative, so dropping intermediates loses
// nothing; flush emits whatever the last burst left behind.
type debouncer struct {
	interval time.Duration
	emit     func(string)
	last     time.Time
	pending  string
	dirty    bool
}

func newDebouncer(interval time.Duration, emit func(string)) *debouncer {
	return &debouncer{interval: interval, emit: emit}
}

func (d *debouncer) observe(text string) {
	d.pending = text
	d.dirty = true
	now := time.Now()
	if !d.last.IsZero() && now.Sub(d.last) < d.interval {
		return
	}
	d.last = now
	d.dirty = false
	d.emit(text)
}

func (d *debouncer) flush() {
	if !d.dirty {
		return
	}
	d.dirty = false
	d.emit(d.pending)
}
