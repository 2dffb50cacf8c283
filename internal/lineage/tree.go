package lineage

import (
	"errors"
	"fmt"
	"log"
	"sort"

	"github.com/darwinpool/go-controller/internal/genome"
)

// #region errors

var (
	// ErrNoRoot means no version in the lineage carries the root sentinel.
	ErrNoRoot = errors.New("lineage has no root version")

	// ErrMultipleRoots means more than one version claims to be the root.
	ErrMultipleRoots = errors.New("lineage has multiple root versions")

	// ErrDuplicateHash means two versions share a content hash, breaking
	// parent resolution.
	ErrDuplicateHash = errors.New("duplicate content hash in lineage")

	// ErrCycle means traversal reached the same version twice. Write-once
	// storage makes this impossible under correct operation; the check is
	// defensive only.
	ErrCycle = errors.New("cycle detected in lineage")
)

// #endregion errors

// #region types

// Node is one version in the reconstructed lineage tree.
type Node struct {
	Version  genome.Version
	Label    string // V1, V2, ... assigned in deterministic BFS order
	Children []*Node
}

// Tree is the reconstructed parent/child graph of a lineage. Versions whose
// parent hash cannot be resolved are quarantined: excluded from the tree and
// reported, never guessed into place.
type Tree struct {
	Root        *Node
	Quarantined []genome.Version

	byHash map[string]*Node
}

// NodeByHash returns the labeled node for a content hash, or nil if the
// version is quarantined or absent.
func (t *Tree) NodeByHash(contentHash string) *Node {
	return t.byHash[contentHash]
}

// #endregion types

// #region build

// Build reconstructs the lineage tree from the full set of a lineage's
// versions. Zero or multiple roots are integrity errors, reported rather
// than guessed at. Labels are assigned by a breadth-first traversal from the
// root; siblings are ordered by creation time, ties broken by content hash
// lexical order so labeling is deterministic.
func Build(versions []genome.Version) (*Tree, error) {
	if len(versions) == 0 {
		return nil, ErrNoRoot
	}

	index := make(map[string]*Node, len(versions))
	var root *Node
	for _, v := range versions {
		if prev, ok := index[v.ContentHash]; ok {
			return nil, fmt.Errorf("hash %s on versions %s and %s: %w",
				v.ContentHash, prev.Version.VersionID, v.VersionID, ErrDuplicateHash)
		}
		n := &Node{Version: v}
		index[v.ContentHash] = n
		if v.IsRoot() {
			if root != nil {
				return nil, fmt.Errorf("versions %s and %s: %w",
					root.Version.VersionID, v.VersionID, ErrMultipleRoots)
			}
			root = n
		}
	}
	if root == nil {
		return nil, ErrNoRoot
	}

	tree := &Tree{Root: root, byHash: make(map[string]*Node, len(versions))}

	for _, n := range index {
		if n == root {
			continue
		}
		parent, ok := index[n.Version.ParentHash]
		if !ok {
			log.Printf("[TREE] quarantine: version %s parent hash %s unresolved",
				n.Version.VersionID, n.Version.ParentHash)
			continue
		}
		parent.Children = append(parent.Children, n)
	}

	for _, n := range index {
		sort.Slice(n.Children, func(i, j int) bool {
			a, b := n.Children[i].Version, n.Children[j].Version
			if !a.CreatedAt.Equal(b.CreatedAt) {
				return a.CreatedAt.Before(b.CreatedAt)
			}
			return a.ContentHash < b.ContentHash
		})
	}

	// BFS labeling with defensive cycle detection.
	visited := make(map[string]bool, len(versions))
	queue := []*Node{root}
	label := 0
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]

		if visited[n.Version.ContentHash] {
			return nil, fmt.Errorf("revisited %s: %w", n.Version.ContentHash, ErrCycle)
		}
		visited[n.Version.ContentHash] = true

		label++
		n.Label = fmt.Sprintf("V%d", label)
		tree.byHash[n.Version.ContentHash] = n
		queue = append(queue, n.Children...)
	}

	// Anything unreached hangs off an unresolved parent, directly or
	// transitively.
	for _, v := range versions {
		if !visited[v.ContentHash] {
			tree.Quarantined = append(tree.Quarantined, v)
		}
	}
	sort.Slice(tree.Quarantined, func(i, j int) bool {
		return tree.Quarantined[i].VersionID < tree.Quarantined[j].VersionID
	})

	return tree, nil
}

// #endregion build

// #region walk

// Walk visits every labeled node in BFS label order.
func (t *Tree) Walk(fn func(*Node)) {
	queue := []*Node{t.Root}
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		fn(n)
		queue = append(queue, n.Children...)
	}
}

// #endregion walk
