// Copyright (c) 2018 Shivaram Lingamneni <slingamn@cs.stanford.edu>
// Copyright (c) 2026 the Ergo bouncer authors
// released under the MIT license

// Package history keeps a bounded, in-memory record of the traffic the
// bouncer relays from the origin.
package history

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/ergochat/bouncer/irc/canon"
)

// Item represents an event (e.g., a PRIVMSG or a JOIN) and its associated data
type Item struct {
	Type canon.Type `json:"type"`
	Time time.Time  `json:"time"`

	Nick    string `json:"nick,omitempty"`
	Channel string `json:"channel"`
	// formatting codes are stripped
	Message string `json:"message,omitempty"`
	// for UsersList, the number of members
	Users int `json:"users,omitempty"`
}

// Buffer is a ring buffer holding message/event history
type Buffer struct {
	sync.RWMutex

	// ring buffer: start is the oldest item, end is where the next one goes;
	// start == -1 means empty, start == end means full
	buffer []Item
	start  int
	end    int

	lastDiscarded time.Time

	enabled atomic.Uint32

	nowFunc func() time.Time
}

func NewHistoryBuffer(size int) (result *Buffer) {
	result = new(Buffer)
	result.Initialize(size)
	return
}

func (hist *Buffer) Initialize(size int) {
	hist.buffer = make([]Item, size)
	hist.start = -1
	hist.end = -1
	hist.nowFunc = time.Now

	hist.setEnabled(size)
}

func (hist *Buffer) setEnabled(size int) {
	var enabled uint32
	if size != 0 {
		enabled = 1
	}
	hist.enabled.Store(enabled)
}

// Enabled returns whether the buffer is currently storing messages
// (a disabled buffer blackholes everything it sees)
func (list *Buffer) Enabled() bool {
	return list.enabled.Load() != 0
}

// Add adds a history item to the buffer
func (list *Buffer) Add(item Item) {
	// fast path without a lock acquisition for when we are not storing history
	if !list.Enabled() {
		return
	}

	if item.Time.IsZero() {
		item.Time = list.nowFunc()
	}

	list.Lock()
	defer list.Unlock()

	var pos int
	if list.start == -1 { // empty
		pos = 0
		list.start = 0
		list.end = 1 % len(list.buffer)
	} else if list.start != list.end { // partially full
		pos = list.end
		list.end = (list.end + 1) % len(list.buffer)
	} else { // full
		pos = list.end
		list.end = (list.end + 1) % len(list.buffer)
		list.start = list.end // advance start as well, overwriting first entry
		// record the timestamp of the overwritten item
		if list.lastDiscarded.Before(list.buffer[pos].Time) {
			list.lastDiscarded = list.buffer[pos].Time
		}
	}

	list.buffer[pos] = item
}

// Between returns up to `limit` of the most recent items with a time
// `after` < time < `before` that satisfy the predicate, oldest first, with an
// indication of whether the results are complete or are missing items because
// some of that period was discarded. A zero value of `before` is considered
// higher than all other times; a nil predicate matches everything, and a
// limit of 0 means no limit.
func (list *Buffer) Between(after, before time.Time, predicate func(*Item) bool, limit int) (results []Item, complete bool) {
	if !list.Enabled() {
		return
	}

	list.RLock()
	defer list.RUnlock()

	complete = !after.Before(list.lastDiscarded)

	satisfies := func(item *Item) bool {
		return (after.IsZero() || item.Time.After(after)) &&
			(before.IsZero() || item.Time.Before(before)) &&
			(predicate == nil || predicate(item))
	}
	return list.matchInternal(satisfies, limit), complete
}

func (list *Buffer) matchInternal(predicate func(*Item) bool, limit int) (results []Item) {
	if list.start == -1 {
		return
	}

	// walk backwards from the newest item, then reverse
	pos := list.prev(list.end)
	for {
		if predicate(&list.buffer[pos]) {
			results = append(results, list.buffer[pos])
			if limit != 0 && len(results) == limit {
				break
			}
		}
		if pos == list.start {
			break
		}
		pos = list.prev(pos)
	}

	for i, j := 0, len(results)-1; i < j; i, j = i+1, j-1 {
		results[i], results[j] = results[j], results[i]
	}
	return
}

// Len returns the number of items currently stored.
func (list *Buffer) Len() int {
	list.RLock()
	defer list.RUnlock()

	return list.length()
}

// LastDiscarded returns the latest time of any entry that was evicted
// from the ring buffer.
func (list *Buffer) LastDiscarded() time.Time {
	list.RLock()
	defer list.RUnlock()

	return list.lastDiscarded
}

func (list *Buffer) prev(index int) int {
	switch index {
	case 0:
		return len(list.buffer) - 1
	default:
		return index - 1
	}
}

// Resize shrinks or expands the buffer, keeping the newest items
func (list *Buffer) Resize(size int) {
	newbuffer := make([]Item, size)
	list.Lock()
	defer list.Unlock()

	list.setEnabled(size)

	if list.start == -1 {
		// indices are already correct and nothing needs to be copied
	} else if size == 0 {
		// this is now the empty list
		list.start = -1
		list.end = -1
	} else {
		currentLength := list.length()
		start := list.start
		end := list.end
		if size < currentLength {
			start = list.end - size
			if start < 0 {
				start += len(list.buffer)
			}
			for i := list.start; i != start; i = (i + 1) % len(list.buffer) {
				if list.lastDiscarded.Before(list.buffer[i].Time) {
					list.lastDiscarded = list.buffer[i].Time
				}
			}
		}
		if start < end {
			copied := copy(newbuffer, list.buffer[start:end])
			list.start = 0
			list.end = copied % size
		} else {
			lenInitial := len(list.buffer) - start
			copied := copy(newbuffer, list.buffer[start:])
			copied += copy(newbuffer[lenInitial:], list.buffer[:end])
			list.start = 0
			list.end = copied % size
		}
	}

	list.buffer = newbuffer
}

func (hist *Buffer) length() int {
	if hist.start == -1 {
		return 0
	} else if hist.start < hist.end {
		return hist.end - hist.start
	} else {
		return len(hist.buffer) - (hist.start - hist.end)
	}
}
