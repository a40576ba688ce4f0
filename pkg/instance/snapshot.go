package instance

import "sort"

// Snapshot maps each reported instance to its state at one poll instant.
// A Snapshot is never modified after construction.
type Snapshot struct {
	states map[ID]State
}

// NewSnapshot builds a snapshot from raw instances. Later entries for the
// same ID win.
func NewSnapshot(raws []Raw) Snapshot {
	states := make(map[ID]State, len(raws))
	for _, r := range raws {
		states[r.ID] = r.State
	}
	return Snapshot{states: states}
}

// SnapshotOf builds a snapshot from an explicit mapping. The map is copied.
func SnapshotOf(states map[ID]State) Snapshot {
	cp := make(map[ID]State, len(states))
	for id, s := range states {
		cp[id] = s
	}
	return Snapshot{states: cp}
}

// Len returns the number of instances present.
func (s Snapshot) Len() int {
	return len(s.states)
}

// State returns the state of id and whether it was present.
func (s Snapshot) State(id ID) (State, bool) {
	st, ok := s.states[id]
	return st, ok
}

// States returns a copy of the underlying mapping.
func (s Snapshot) States() map[ID]State {
	cp := make(map[ID]State, len(s.states))
	for id, st := range s.states {
		cp[id] = st
	}
	return cp
}

// AllIn reports whether every id is present and in target.
// An empty snapshot never satisfies the predicate.
func (s Snapshot) AllIn(ids []ID, target State) bool {
	if len(s.states) == 0 {
		return false
	}
	for _, id := range ids {
		st, ok := s.states[id]
		if !ok || !st.Is(target) {
			return false
		}
	}
	return true
}

// Pending returns the ids that are missing or not yet in target, sorted.
func (s Snapshot) Pending(ids []ID, target State) []ID {
	var out []ID
	for _, id := range ids {
		st, ok := s.states[id]
		if !ok || !st.Is(target) {
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Strings returns the mapping with plain string keys, for logging.
func (s Snapshot) Strings() map[string]string {
	out := make(map[string]string, len(s.states))
	for id, st := range s.states {
		out[string(id)] = string(st)
	}
	return out
}
