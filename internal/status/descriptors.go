package status

import (
	"fmt"
	"sort"

	"gamedeck/internal/backend"
)

// Descriptor describes one installed version folder. Name is unique; Key
// maps it to the upstream version it tracks.
type Descriptor struct {
	Name             string              `json:"name"`
	DisplayVersion   string              `json:"display_version"`
	Type             backend.VersionType `json:"type"`
	IsRegistered     bool                `json:"is_registered"`
	IsolationEnabled bool                `json:"isolation_enabled"`
}

// Key returns the version key the folder tracks.
func (d Descriptor) Key() Key {
	return Key{Version: d.DisplayVersion, Type: d.Type}
}

// PutDescriptor adds or replaces the descriptor for d.Name.
func (c *Cache) PutDescriptor(d Descriptor) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.descriptors[d.Name] = d
	if d.DisplayVersion != "" {
		c.keys[d.Key().String()] = d.Key()
	}
}

// ReplaceDescriptors swaps the full descriptor set, typically after a
// scan of the versions directory.
func (c *Cache) ReplaceDescriptors(ds []Descriptor) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.descriptors = make(map[string]Descriptor, len(ds))
	for _, d := range ds {
		c.descriptors[d.Name] = d
		if d.DisplayVersion != "" {
			c.keys[d.Key().String()] = d.Key()
		}
	}
}

// Descriptor returns the descriptor for folder name.
func (c *Cache) Descriptor(name string) (Descriptor, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	d, ok := c.descriptors[name]
	return d, ok
}

// RemoveDescriptor forgets folder name and returns what was removed.
func (c *Cache) RemoveDescriptor(name string) (Descriptor, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	d, ok := c.descriptors[name]
	delete(c.descriptors, name)
	return d, ok
}

// SetRegistered updates the registration flag of folder name.
func (c *Cache) SetRegistered(name string, registered bool) error {
	return c.updateDescriptor(name, func(d *Descriptor) { d.IsRegistered = registered })
}

// SetIsolation updates the isolation flag of folder name.
func (c *Cache) SetIsolation(name string, enabled bool) error {
	return c.updateDescriptor(name, func(d *Descriptor) { d.IsolationEnabled = enabled })
}

func (c *Cache) updateDescriptor(name string, fn func(*Descriptor)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	d, ok := c.descriptors[name]
	if !ok {
		return fmt.Errorf("unknown version folder %q", name)
	}
	fn(&d)
	c.descriptors[name] = d
	return nil
}

// Descriptors returns all descriptors, newest version first and by name
// within a version.
func (c *Cache) Descriptors() []Descriptor {
	c.mu.RLock()
	out := make([]Descriptor, 0, len(c.descriptors))
	for _, d := range c.descriptors {
		out = append(out, d)
	}
	c.mu.RUnlock()

	keys := make([]Key, len(out))
	for i, d := range out {
		keys[i] = d.Key()
	}
	order := make(map[string]int, len(keys))
	SortKeys(keys)
	for i, k := range keys {
		if _, ok := order[k.String()]; !ok {
			order[k.String()] = i
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		oi, oj := order[out[i].Key().String()], order[out[j].Key().String()]
		if oi != oj {
			return oi < oj
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// ActiveKeys returns the distinct keys tracked by current descriptors.
func (c *Cache) ActiveKeys() []Key {
	c.mu.RLock()
	seen := make(map[string]bool)
	var keys []Key
	for _, d := range c.descriptors {
		k := d.Key()
		if k.Version == "" || seen[k.String()] {
			continue
		}
		seen[k.String()] = true
		keys = append(keys, k)
	}
	c.mu.RUnlock()

	SortKeys(keys)
	return keys
}

// FoldersFor returns the folder names tracking key.
func (c *Cache) FoldersFor(key Key) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var names []string
	for _, d := range c.descriptors {
		if d.Key() == key {
			names = append(names, d.Name)
		}
	}
	sort.Strings(names)
	return names
}
