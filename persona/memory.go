package persona

import (
	"context"
	"fmt"
	"sync"
)

// MemoryDirectory is a Directory backed by an ordered in-memory slice.
type MemoryDirectory struct {
	mu    sync.RWMutex
	order []string
	byID  map[string]Descriptor
}

// NewMemoryDirectory creates a directory seeded with descs.
func NewMemoryDirectory(descs ...Descriptor) *MemoryDirectory {
	d := &MemoryDirectory{byID: make(map[string]Descriptor, len(descs))}
	for _, desc := range descs {
		d.Put(desc)
	}
	return d
}

// Put inserts or replaces a persona.
func (d *MemoryDirectory) Put(desc Descriptor) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.byID[desc.ID]; !ok {
		d.order = append(d.order, desc.ID)
	}
	d.byID[desc.ID] = desc
}

// Replace swaps the whole directory contents for descs, keeping their order.
// Later duplicates of an id win.
func (d *MemoryDirectory) Replace(descs ...Descriptor) {
	order := make([]string, 0, len(descs))
	byID := make(map[string]Descriptor, len(descs))
	for _, desc := range descs {
		if _, ok := byID[desc.ID]; !ok {
			order = append(order, desc.ID)
		}
		byID[desc.ID] = desc
	}
	d.mu.Lock()
	d.order, d.byID = order, byID
	d.mu.Unlock()
}

// Len reports the number of personas.
func (d *MemoryDirectory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.order)
}

// Remove deletes a persona. Unknown ids are ignored.
func (d *MemoryDirectory) Remove(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.byID[id]; !ok {
		return
	}
	delete(d.byID, id)
	for i, o := range d.order {
		if o == id {
			d.order = append(d.order[:i], d.order[i+1:]...)
			break
		}
	}
}

func (d *MemoryDirectory) List(_ context.Context) ([]Descriptor, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]Descriptor, 0, len(d.order))
	for _, id := range d.order {
		out = append(out, d.byID[id])
	}
	return out, nil
}

// Lookup resolves id against the current contents. Its method value is a
// Lookup that follows later Replace calls.
func (d *MemoryDirectory) Lookup(id string) (Descriptor, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	desc, ok := d.byID[id]
	return desc, ok
}

func (d *MemoryDirectory) Get(_ context.Context, id string) (*Descriptor, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	desc, ok := d.byID[id]
	if !ok {
		return nil, fmt.Errorf("get persona %s: %w", id, ErrNotFound)
	}
	return &desc, nil
}
