// Package script tracks registered scripts for the Ember runtime: their
// source text, filesystem modification time, and a content digest used to
// suppress no-op reloads.
package script

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/OneOfOne/xxhash"
)

// Info describes one registered script. Path is empty for content-only
// scripts; ContentHash is a deterministic digest over the current text,
// used for change detection only.
type Info struct {
	Name         string
	Path         string
	Content      string
	LastModified time.Time
	ContentHash  uint64
	Applied      bool // content has been executed at least once
}

// Hash returns the content digest used for reload suppression.
func Hash(content string) uint64 {
	return xxhash.ChecksumString64(content)
}

// Registry holds script records keyed by name, preserving registration
// order. Re-registering a name replaces the record without disturbing its
// order slot.
type Registry struct {
	mu      sync.Mutex
	scripts map[string]*Info
	order   []string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		scripts: make(map[string]*Info),
	}
}

// Register reads the file at path and stores its content, mtime, and hash
// under name.
func (r *Registry) Register(name, path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("failed to stat '%s': %w", path, err)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read '%s': %w", path, err)
	}

	r.put(&Info{
		Name:         name,
		Path:         path,
		Content:      string(content),
		LastModified: info.ModTime(),
		ContentHash:  Hash(string(content)),
	})
	return nil
}

// RegisterContent stores a content-only script with no backing file.
func (r *Registry) RegisterContent(name, content string) {
	r.put(&Info{
		Name:        name,
		Content:     content,
		ContentHash: Hash(content),
	})
}

func (r *Registry) put(info *Info) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.scripts[info.Name]; !ok {
		r.order = append(r.order, info.Name)
	}
	r.scripts[info.Name] = info
}

// Get returns a copy of the record for name.
func (r *Registry) Get(name string) (Info, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	info, ok := r.scripts[name]
	if !ok {
		return Info{}, false
	}
	return *info, true
}

// Remove drops the record for name.
func (r *Registry) Remove(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.scripts[name]; !ok {
		return false
	}
	delete(r.scripts, name)
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return true
}

// List returns copies of all records in registration order.
func (r *Registry) List() []Info {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Info, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, *r.scripts[name])
	}
	return out
}

// Names returns the registered names in registration order.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// NeedsReload reports whether the file's current mtime differs from the
// stored one. A script that has never been applied, or whose file can no
// longer be stat'ed, also needs a reload. Content-only scripts never need a
// file-driven reload.
func (r *Registry) NeedsReload(name string) bool {
	r.mu.Lock()
	info, ok := r.scripts[name]
	r.mu.Unlock()

	if !ok || info.Path == "" {
		return false
	}
	if !info.Applied {
		return true
	}
	stat, err := os.Stat(info.Path)
	if err != nil {
		// A vanished file counts as changed; the reload path reports it.
		return true
	}
	return !stat.ModTime().Equal(info.LastModified)
}

// UpdateContent replaces the stored content and hash. When mtime is
// non-zero it also records the new modification time; content-only reloads
// pass the zero time and leave LastModified untouched.
func (r *Registry) UpdateContent(name, content string, mtime time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	info, ok := r.scripts[name]
	if !ok {
		return fmt.Errorf("script '%s' is not registered", name)
	}
	info.Content = content
	info.ContentHash = Hash(content)
	info.Applied = true
	if !mtime.IsZero() {
		info.LastModified = mtime
	}
	return nil
}
