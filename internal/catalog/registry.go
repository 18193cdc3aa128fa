package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"CatalogTx/internal/transaction"

	"github.com/spf13/afero"
)

var (
	ErrEmptyName  = errors.New("empty name")
	ErrIDConflict = errors.New("name already mapped to a different id")
)

// Registry maps names of one catalog kind to stable integer ids. On disk it
// is {"<key>": {"name": id, ...}, "next_id": N}.
type Registry struct {
	key    string
	path   string
	ids    map[string]int
	nextID int
}

// LoadRegistry reads the registry at path. A missing file yields an empty
// registry whose first id is 1.
func LoadRegistry(fs afero.Fs, path, key string) (*Registry, error) {
	r := &Registry{key: key, path: path, ids: make(map[string]int), nextID: 1}

	data, err := afero.ReadFile(fs, path)
	if err != nil {
		if os.IsNotExist(err) {
			return r, nil
		}
		return nil, fmt.Errorf("failed to read %s registry %s: %w", key, path, err)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return r, nil
	}
	if err := json.Unmarshal(data, r); err != nil {
		return nil, fmt.Errorf("failed to parse %s registry %s: %w", key, path, err)
	}
	return r, nil
}

func (r *Registry) Path() string { return r.path }

func (r *Registry) Len() int { return len(r.ids) }

func (r *Registry) Lookup(name string) (int, bool) {
	id, ok := r.ids[strings.TrimSpace(name)]
	return id, ok
}

// Assign returns the id of name, handing out the next free id when the name
// is new.
func (r *Registry) Assign(name string) (id int, created bool, err error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return 0, false, fmt.Errorf("%s: %w", r.key, ErrEmptyName)
	}
	if id, ok := r.ids[name]; ok {
		return id, false, nil
	}
	id = r.nextID
	r.ids[name] = id
	r.nextID++
	return id, true, nil
}

// Define maps name to a fixed id. Redefining a name with the same id is a no-op.
func (r *Registry) Define(name string, id int) (bool, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return false, fmt.Errorf("%s: %w", r.key, ErrEmptyName)
	}
	if cur, ok := r.ids[name]; ok {
		if cur != id {
			return false, fmt.Errorf("%s %q is %d, not %d: %w", r.key, name, cur, id, ErrIDConflict)
		}
		return false, nil
	}
	r.ids[name] = id
	if id >= r.nextID {
		r.nextID = id + 1
	}
	return true, nil
}

type Entry struct {
	Name string
	ID   int
}

// Entries lists the registry ordered by id.
func (r *Registry) Entries() []Entry {
	out := make([]Entry, 0, len(r.ids))
	for name, id := range r.ids {
		out = append(out, Entry{Name: name, ID: id})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ID != out[j].ID {
			return out[i].ID < out[j].ID
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// Persist writes the registry through the store's active transaction.
func (r *Registry) Persist(s *transaction.Store) error {
	return s.WriteStructuredRecord(r.path, r.record())
}

// Snapshot captures the in-memory state for Restore.
type Snapshot struct {
	ids    map[string]int
	nextID int
}

func (r *Registry) Snapshot() Snapshot {
	ids := make(map[string]int, len(r.ids))
	for k, v := range r.ids {
		ids[k] = v
	}
	return Snapshot{ids: ids, nextID: r.nextID}
}

// Restore drops every change made since snap was taken.
func (r *Registry) Restore(snap Snapshot) {
	r.ids = snap.ids
	r.nextID = snap.nextID
}

func (r *Registry) record() map[string]any {
	return map[string]any{
		r.key:     r.ids,
		"next_id": r.nextID,
	}
}

func (r *Registry) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	ids := make(map[string]int)
	if body, ok := raw[r.key]; ok {
		if err := json.Unmarshal(body, &ids); err != nil {
			return fmt.Errorf("%s: %w", r.key, err)
		}
	}

	next := 0
	if body, ok := raw["next_id"]; ok {
		if err := json.Unmarshal(body, &next); err != nil {
			return fmt.Errorf("next_id: %w", err)
		}
	}
	// next_id never trails the largest stored id.
	for _, id := range ids {
		if id >= next {
			next = id + 1
		}
	}
	if next < 1 {
		next = 1
	}

	r.ids = ids
	r.nextID = next
	return nil
}
