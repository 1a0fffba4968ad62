// Package state persists the digests of every item as of its last successful
// sync. The diff engine uses them to tell which side of a difference changed.
package state

import (
	"encoding/json"
	"os"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/afero"

	"github.com/sidkik/cacs/pkg/diff"
	"github.com/sidkik/cacs/pkg/errors"
	"github.com/sidkik/cacs/pkg/fsutil"
)

// Version is the version of the state file format.
const Version = 1

// State is the sync state of every item.
type State struct {
	Version int                  `json:"version"`
	Items   map[string]ItemState `json:"items"`
}

// ItemState is the state of a single item.
type ItemState struct {
	Digests   diff.Baseline `json:"digests"`
	Operation string        `json:"operation"`
	SyncedAt  time.Time     `json:"syncedAt"`
}

// Baseline returns the digests recorded for the item, or nil if it was never
// synced.
func (st State) Baseline(item string) diff.Baseline {
	entry, ok := st.Items[item]
	if !ok {
		return nil
	}
	return entry.Digests
}

// Store reads and writes the state file.
type Store struct {
	fs    afero.Fs
	path  string
	clock clockwork.Clock
}

// NewStore returns a Store for the state file at path.
func NewStore(fs afero.Fs, path string, clock clockwork.Clock) Store {
	return Store{fs: fs, path: path, clock: clock}
}

// Load reads the state file. A missing file is an empty state. A corrupt file
// is an error, but the empty state is still returned so that callers can
// continue without attributing differences.
func (store Store) Load() (State, error) {
	empty := State{Version: Version, Items: map[string]ItemState{}}

	contents, err := afero.ReadFile(store.fs, store.path)
	if err != nil {
		if os.IsNotExist(err) {
			return empty, nil
		}
		return State{}, errors.IOError{Op: "read", Path: store.path, Err: err}
	}

	var st State
	if err := json.Unmarshal(contents, &st); err != nil || st.Version != Version {
		return empty, errors.WithContext(errors.New("unrecognized state file %q", store.path), "parse")
	}
	if st.Items == nil {
		st.Items = map[string]ItemState{}
	}
	return st, nil
}

// Record stores the digests of an item after a successful operation.
func (store Store) Record(st State, item, operation string, digests diff.Baseline) {
	st.Items[item] = ItemState{
		Digests:   digests,
		Operation: operation,
		SyncedAt:  store.clock.Now().UTC(),
	}
}

// Save atomically writes st to the state file.
func (store Store) Save(st State) error {
	st.Version = Version
	contents, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return errors.WithContext(err, "marshal")
	}
	return fsutil.WriteFile(store.fs, store.path, append(contents, '\n'), 0644)
}
