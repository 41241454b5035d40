package config

import (
	"sort"
	"strings"
)

// Snapshot is an immutable configuration tree. A Store replaces its snapshot
// wholesale on every change, so a *Snapshot obtained from Store.Snapshot stays
// consistent for as long as the caller holds it.
type Snapshot struct {
	root    Value
	version int64
}

func emptyRoot() Value {
	return Value{kind: KindObject, obj: map[string]Value{}}
}

// NewSnapshot builds a snapshot from a decoded document tree.
func NewSnapshot(tree map[string]any) (*Snapshot, error) {
	snap := &Snapshot{root: emptyRoot()}
	if len(tree) == 0 {
		return snap, nil
	}
	patch, err := FromAny(tree)
	if err != nil {
		return nil, err
	}
	return snap.merge(patch), nil
}

// Version returns the store version at which this snapshot was installed.
func (s *Snapshot) Version() int64 {
	if s == nil {
		return 0
	}
	return s.version
}

// Root returns the whole tree as an object value.
func (s *Snapshot) Root() Value {
	if s == nil {
		return emptyRoot()
	}
	return s.root.clone()
}

// Lookup resolves a dotted key such as "threading.database_threads".
func (s *Snapshot) Lookup(key string) (Value, bool) {
	if s == nil {
		return Value{}, false
	}
	cur := s.root
	for _, part := range splitKey(key) {
		next, ok := cur.Child(part)
		if !ok {
			return Value{}, false
		}
		cur = next
	}
	return cur.clone(), true
}

// Leaves flattens the tree into dotted leaf keys. Empty objects contribute no
// leaves.
func (s *Snapshot) Leaves() map[string]Value {
	out := make(map[string]Value)
	if s == nil {
		return out
	}
	flatten("", s.root, out)
	return out
}

// ToMap converts the snapshot into plain Go maps for encoding.
func (s *Snapshot) ToMap() map[string]any {
	if s == nil {
		return map[string]any{}
	}
	m, _ := s.root.ToAny().(map[string]any)
	if m == nil {
		m = map[string]any{}
	}
	return m
}

// Merge returns a new snapshot with patch deep-merged over s. Leaves in the
// patch overwrite existing leaves; objects merge recursively. Keys containing
// dots are expanded into nested paths.
func (s *Snapshot) Merge(patch Value) *Snapshot {
	return s.merge(patch)
}

func (s *Snapshot) merge(patch Value) *Snapshot {
	var root Value
	if s == nil {
		root = emptyRoot()
	} else {
		root = s.root.clone()
	}
	out := &Snapshot{root: root}
	if s != nil {
		out.version = s.version
	}
	if patch.kind != KindObject {
		return out
	}
	leaves := make(map[string]Value)
	flatten("", patch, leaves)
	keys := make([]string, 0, len(leaves))
	for k := range leaves {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		setPath(&out.root, splitKey(k), leaves[k])
	}
	return out
}

// Diff returns the sorted dotted keys whose resolved leaf value differs between
// two snapshots, including keys present in only one of them.
func Diff(before, after *Snapshot) []string {
	a := before.Leaves()
	b := after.Leaves()
	var changed []string
	for k, av := range a {
		bv, ok := b[k]
		if !ok || !av.Equal(bv) {
			changed = append(changed, k)
		}
	}
	for k := range b {
		if _, ok := a[k]; !ok {
			changed = append(changed, k)
		}
	}
	sort.Strings(changed)
	return changed
}

func splitKey(key string) []string {
	parts := strings.Split(key, ".")
	out := parts[:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func joinKey(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}

func flatten(prefix string, v Value, out map[string]Value) {
	if v.kind != KindObject {
		if prefix != "" {
			out[prefix] = v
		}
		return
	}
	for k, child := range v.obj {
		flatten(joinKey(prefix, strings.Trim(k, ".")), child, out)
	}
}

// setPath writes leaf at path inside root, creating intermediate objects and
// replacing scalars that stand where an object is needed. root must be a
// private copy.
func setPath(root *Value, path []string, leaf Value) {
	if len(path) == 0 {
		return
	}
	cur := root
	for i, part := range path {
		if cur.kind != KindObject {
			*cur = emptyRoot()
		}
		if i == len(path)-1 {
			cur.obj[part] = leaf
			return
		}
		child, ok := cur.obj[part]
		if !ok || child.kind != KindObject {
			child = emptyRoot()
		}
		cur.obj[part] = child
		// Maps are reference types, so descending through a copy of child
		// still writes into the map stored in cur.obj.
		next := cur.obj[part]
		cur = &next
	}
}
