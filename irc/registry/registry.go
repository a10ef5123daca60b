// Copyright (c) 2026 the Ergo bouncer authors
// released under the MIT license

// Package registry tracks the live downstream connections of one listener
// and fans messages out to all of them.
package registry

import (
	"fmt"
	"sort"
	"sync"

	"github.com/ergochat/bouncer/irc/transport"
	"github.com/ergochat/bouncer/irc/wire"
)

// BroadcastError reports that some connections missed a broadcast.
// Those connections have already been closed.
type BroadcastError struct {
	Failed int
	First  error
}

func (e *BroadcastError) Error() string {
	return fmt.Sprintf("broadcast failed on %d connection(s): %v", e.Failed, e.First)
}

func (e *BroadcastError) Unwrap() error {
	return e.First
}

// Registry maps connection ids to transports. Ids come from a counter; when
// it wraps, ids still in use are skipped, so no two live connections ever
// share an id. All access, including every broadcast, happens under one lock,
// so broadcasts are totally ordered with respect to each other and to
// registration.
type Registry struct {
	sync.Mutex

	conns  map[uint32]*transport.Transport
	nextID uint32
}

func NewRegistry() *Registry {
	return &Registry{
		conns: make(map[uint32]*transport.Transport),
	}
}

// Insert registers a transport and returns its id.
func (reg *Registry) Insert(t *transport.Transport) (id uint32) {
	reg.Lock()
	defer reg.Unlock()

	for {
		id = reg.nextID
		reg.nextID++
		if _, taken := reg.conns[id]; !taken {
			break
		}
	}
	reg.conns[id] = t
	return
}

// Remove unregisters an id; removing an absent id is a no-op.
func (reg *Registry) Remove(id uint32) {
	reg.Lock()
	defer reg.Unlock()

	delete(reg.conns, id)
}

// Len returns the number of registered connections.
func (reg *Registry) Len() int {
	reg.Lock()
	defer reg.Unlock()

	return len(reg.conns)
}

// IDs returns the registered ids in ascending order.
func (reg *Registry) IDs() (result []uint32) {
	reg.Lock()
	defer reg.Unlock()

	result = make([]uint32, 0, len(reg.conns))
	for id := range reg.conns {
		result = append(result, id)
	}
	sort.Slice(result, func(i, j int) bool { return result[i] < result[j] })
	return
}

// CloseAll closes every registered transport. Their readers remove them.
func (reg *Registry) CloseAll() {
	reg.Lock()
	defer reg.Unlock()

	for _, t := range reg.conns {
		t.Close()
	}
}

// Broadcast sends the whole batch, in order, to every registered connection.
// A connection whose write fails is closed (its reader will then remove it)
// and delivery continues to the others; the first failure is reported once
// everyone has been tried.
func (reg *Registry) Broadcast(batch []wire.Message) error {
	lines := make([][]byte, len(batch))
	for i := range batch {
		line, err := batch[i].LineBytes()
		if err != nil {
			return err
		}
		lines[i] = line
	}

	reg.Lock()
	defer reg.Unlock()

	// deterministic order makes the fan-out easier to reason about in logs
	ids := make([]uint32, 0, len(reg.conns))
	for id := range reg.conns {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var result *BroadcastError
	for _, id := range ids {
		t := reg.conns[id]
		if err := t.WriteLines(lines); err != nil {
			t.Close()
			if result == nil {
				result = &BroadcastError{First: err}
			}
			result.Failed++
		}
	}

	if result != nil {
		return result
	}
	return nil
}
