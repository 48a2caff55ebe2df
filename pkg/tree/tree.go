// Package tree models a branching conversation as a flat list of nodes linked
// by parent ids and resolves the message path leading to any node.
//
// The server never stores tree structure: clients submit the whole tree with
// every request and the resolver derives the context for the targeted branch.
package tree

import (
	"errors"
	"fmt"
	"sort"
)

// ErrDuplicateNode is returned by Validate when two nodes share an id.
var ErrDuplicateNode = errors.New("duplicate node id")

// Role identifies the author of a message.
type Role string

const (
	// RoleUser marks a message written by the user (a node's prompt).
	RoleUser Role = "user"
	// RoleModel marks a message produced by the model (a node's response).
	RoleModel Role = "model"
)

// Message is a single role-tagged turn of the conversation.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Node is one prompt/response exchange. A node without ParentID is a root.
type Node struct {
	ID        string `json:"node_id"`
	ParentID  string `json:"parent_id,omitempty"`
	Prompt    string `json:"prompt"`
	Response  string `json:"response"`
	Timestamp string `json:"timestamp"`
}

// IsRoot reports whether the node has no parent.
func (n Node) IsRoot() bool {
	return n.ParentID == ""
}

// Tree is the client-submitted conversation forest.
type Tree struct {
	SessionID string `json:"session_id"`
	Nodes     []Node `json:"nodes"`
}

// Validate rejects trees whose node ids are not unique.
func (t Tree) Validate() error {
	seen := make(map[string]struct{}, len(t.Nodes))
	for _, n := range t.Nodes {
		if _, ok := seen[n.ID]; ok {
			return fmt.Errorf("%w: %q", ErrDuplicateNode, n.ID)
		}
		seen[n.ID] = struct{}{}
	}
	return nil
}

// Index returns the nodes keyed by id. Later duplicates win.
func Index(nodes []Node) map[string]Node {
	m := make(map[string]Node, len(nodes))
	for _, n := range nodes {
		m[n.ID] = n
	}
	return m
}

// Branch is a node together with its descendants, used for nested exports.
type Branch struct {
	Node
	Children []*Branch `json:"children"`
}

// Branches returns the forest in nested form. Roots and siblings keep their
// order of appearance in Nodes. Nodes whose parent is missing from the tree
// are promoted to roots, and so is the earliest node of every parent cycle,
// so each node appears exactly once.
func (t Tree) Branches() []*Branch {
	byID := make(map[string]*Branch, len(t.Nodes))
	order := make([]*Branch, 0, len(t.Nodes))
	pos := make(map[*Branch]int, len(t.Nodes))
	for _, n := range t.Nodes {
		if _, ok := byID[n.ID]; ok {
			continue
		}
		b := &Branch{Node: n, Children: []*Branch{}}
		byID[n.ID] = b
		pos[b] = len(order)
		order = append(order, b)
	}

	parentOf := func(b *Branch) *Branch {
		p, ok := byID[b.ParentID]
		if b.IsRoot() || !ok || p == b {
			return nil
		}
		return p
	}

	isRoot := make(map[*Branch]bool)
	for _, b := range order {
		if parentOf(b) == nil {
			isRoot[b] = true
		}
	}
	for _, b := range order {
		promoteCycle(b, parentOf, isRoot, pos)
	}

	roots := make([]*Branch, 0)
	for _, b := range order {
		if isRoot[b] {
			roots = append(roots, b)
			continue
		}
		p := parentOf(b)
		p.Children = append(p.Children, b)
	}
	return roots
}

// promoteCycle walks up from b. When the walk closes a loop before reaching
// a root, the loop member that appears first in the tree becomes a root.
func promoteCycle(b *Branch, parentOf func(*Branch) *Branch, isRoot map[*Branch]bool, pos map[*Branch]int) {
	walk := make([]*Branch, 0)
	seen := make(map[*Branch]int)
	for cur := b; cur != nil && !isRoot[cur]; cur = parentOf(cur) {
		if at, ok := seen[cur]; ok {
			first := walk[at]
			for _, m := range walk[at:] {
				if pos[m] < pos[first] {
					first = m
				}
			}
			isRoot[first] = true
			return
		}
		seen[cur] = len(walk)
		walk = append(walk, cur)
	}
}

// Depth returns the depth of each node in Branches, keyed by id.
func (t Tree) Depth() map[string]int {
	depth := make(map[string]int, len(t.Nodes))
	var walk func(bs []*Branch, d int)
	walk = func(bs []*Branch, d int) {
		for _, b := range bs {
			depth[b.ID] = d
			walk(b.Children, d+1)
		}
	}
	walk(t.Branches(), 0)
	return depth
}

// Leaves returns the ids of nodes without children in Branches, sorted.
func (t Tree) Leaves() []string {
	leaves := make([]string, 0)
	var walk func(bs []*Branch)
	walk = func(bs []*Branch) {
		for _, b := range bs {
			if len(b.Children) == 0 {
				leaves = append(leaves, b.ID)
			}
			walk(b.Children)
		}
	}
	walk(t.Branches())
	sort.Strings(leaves)
	return leaves
}
