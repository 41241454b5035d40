package dedup

import (
	"fmt"
	"sort"

	"media-dedup/internal/database"
	"media-dedup/internal/decoder"
	"media-dedup/internal/fingerprint"
)

// Find returns the duplicate groups among files for mode. threshold is the
// largest Hamming distance at which two images count as similar; a negative
// threshold disables similarity matching.
func Find(files []database.FingerprintedFile, mode fingerprint.Mode, threshold int) []database.DuplicateGroup {
	exact, representatives := ExactGroups(files)
	groups := exact
	if mode.UsesPerceptualHash() && threshold >= 0 {
		groups = append(groups, SimilarGroups(representatives, threshold)...)
	}
	sortGroups(groups)
	return groups
}

// ExactGroups groups files by content digest. It also returns one file per
// distinct digest, the first by path, for similarity matching.
func ExactGroups(files []database.FingerprintedFile) ([]database.DuplicateGroup, []database.FingerprintedFile) {
	byHash := make(map[string][]database.FingerprintedFile)
	for _, f := range files {
		if f.Fingerprint.ContentHash == "" {
			continue
		}
		byHash[f.Fingerprint.ContentHash] = append(byHash[f.Fingerprint.ContentHash], f)
	}

	var (
		groups          []database.DuplicateGroup
		representatives []database.FingerprintedFile
	)
	for hash, members := range byHash {
		sort.Slice(members, func(i, j int) bool { return members[i].File.Path < members[j].File.Path })
		representatives = append(representatives, members[0])
		if len(members) < 2 {
			continue
		}
		groups = append(groups, newGroup(database.KindExact, hash, members))
	}
	sort.Slice(representatives, func(i, j int) bool {
		return representatives[i].File.Path < representatives[j].File.Path
	})
	return groups, representatives
}

// SimilarGroups clusters files whose perceptual hashes are within threshold
// of each other. Files without a perceptual hash are ignored.
func SimilarGroups(files []database.FingerprintedFile, threshold int) []database.DuplicateGroup {
	var candidates []database.FingerprintedFile
	for _, f := range files {
		if f.Fingerprint.HasPerceptual {
			candidates = append(candidates, f)
		}
	}
	if len(candidates) < 2 {
		return nil
	}

	sets := newUnionFind(len(candidates))
	tree := &bkTree{}
	for i, f := range candidates {
		for _, j := range tree.within(f.Fingerprint.PerceptualHash, threshold) {
			sets.union(i, j)
		}
		tree.insert(f.Fingerprint.PerceptualHash, i)
	}

	clusters := make(map[int][]database.FingerprintedFile)
	for i, f := range candidates {
		root := sets.find(i)
		clusters[root] = append(clusters[root], f)
	}

	var groups []database.DuplicateGroup
	for _, members := range clusters {
		if len(members) < 2 {
			continue
		}
		sort.Slice(members, func(i, j int) bool { return members[i].File.Path < members[j].File.Path })
		hash := fmt.Sprintf("%016x", members[0].Fingerprint.PerceptualHash)
		groups = append(groups, newGroup(database.KindSimilar, hash, members))
	}
	return groups
}

func newGroup(kind, hash string, members []database.FingerprintedFile) database.DuplicateGroup {
	g := database.DuplicateGroup{Kind: kind, Hash: hash}
	var largest int64
	for _, m := range members {
		g.Files = append(g.Files, m.File)
		g.TotalSize += m.File.Size
		largest = max(largest, m.File.Size)
	}
	g.Reclaimable = g.TotalSize - largest
	return g
}

// sortGroups orders groups by reclaimable bytes, largest first.
func sortGroups(groups []database.DuplicateGroup) {
	sort.SliceStable(groups, func(i, j int) bool {
		if groups[i].Reclaimable != groups[j].Reclaimable {
			return groups[i].Reclaimable > groups[j].Reclaimable
		}
		if groups[i].Kind != groups[j].Kind {
			return groups[i].Kind == database.KindExact
		}
		return groups[i].Hash < groups[j].Hash
	})
}

// unionFind is a disjoint-set forest with path halving.
type unionFind struct {
	parent []int
	rank   []int
}

func newUnionFind(n int) *unionFind {
	u := &unionFind{parent: make([]int, n), rank: make([]int, n)}
	for i := range u.parent {
		u.parent[i] = i
	}
	return u
}

func (u *unionFind) find(x int) int {
	for u.parent[x] != x {
		u.parent[x] = u.parent[u.parent[x]]
		x = u.parent[x]
	}
	return x
}

func (u *unionFind) union(a, b int) {
	ra, rb := u.find(a), u.find(b)
	if ra == rb {
		return
	}
	switch {
	case u.rank[ra] < u.rank[rb]:
		u.parent[ra] = rb
	case u.rank[ra] > u.rank[rb]:
		u.parent[rb] = ra
	default:
		u.parent[rb] = ra
		u.rank[ra]++
	}
}

// bkTree indexes hashes by Hamming distance for radius queries.
type bkTree struct {
	root *bkNode
}

type bkNode struct {
	hash     uint64
	ids      []int
	children map[int]*bkNode
}

func (t *bkTree) insert(hash uint64, id int) {
	if t.root == nil {
		t.root = &bkNode{hash: hash, ids: []int{id}}
		return
	}
	node := t.root
	for {
		d := decoder.Distance(hash, node.hash)
		if d == 0 {
			node.ids = append(node.ids, id)
			return
		}
		child, ok := node.children[d]
		if !ok {
			if node.children == nil {
				node.children = make(map[int]*bkNode)
			}
			node.children[d] = &bkNode{hash: hash, ids: []int{id}}
			return
		}
		node = child
	}
}

// within returns the ids of every hash at most radius away from hash.
func (t *bkTree) within(hash uint64, radius int) []int {
	if t.root == nil {
		return nil
	}
	var out []int
	stack := []*bkNode{t.root}
	for len(stack) > 0 {
		node := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		d := decoder.Distance(hash, node.hash)
		if d <= radius {
			out = append(out, node.ids...)
		}
		for cd, child := range node.children {
			if cd >= d-radius && cd <= d+radius {
				stack = append(stack, child)
			}
		}
	}
	return out
}
