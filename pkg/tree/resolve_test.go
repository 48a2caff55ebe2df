package tree

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// branching builds:
//
//	r ─ a ─ b
//	  └ c ─ d
//	x (separate root)
func branching() []Node {
	return []Node{
		{ID: "r", Prompt: "p-r", Response: "a-r"},
		{ID: "a", ParentID: "r", Prompt: "p-a", Response: "a-a"},
		{ID: "c", ParentID: "r", Prompt: "p-c", Response: "a-c"},
		{ID: "b", ParentID: "a", Prompt: "p-b", Response: "a-b"},
		{ID: "d", ParentID: "c", Prompt: "p-d", Response: "a-d"},
		{ID: "x", Prompt: "p-x", Response: "a-x"},
	}
}

func TestResolvePath(t *testing.T) {
	nodes := branching()

	tests := []struct {
		name   string
		target string
		want   []string
	}{
		{"empty target", "", []string{}},
		{"root", "r", []string{"r"}},
		{"deep left branch", "b", []string{"r", "a", "b"}},
		{"deep right branch", "d", []string{"r", "c", "d"}},
		{"separate root", "x", []string{"x"}},
		{"unknown target", "nope", []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ResolvePath(tt.target, nodes))
		})
	}
}

func TestResolvePath_DanglingParentTruncates(t *testing.T) {
	nodes := []Node{
		{ID: "a", ParentID: "missing", Prompt: "p-a", Response: "a-a"},
		{ID: "b", ParentID: "a", Prompt: "p-b", Response: "a-b"},
	}

	assert.Equal(t, []string{"a", "b"}, ResolvePath("b", nodes))
}

func TestResolvePath_CycleTerminates(t *testing.T) {
	nodes := []Node{
		{ID: "a", ParentID: "b"},
		{ID: "b", ParentID: "a"},
	}

	assert.Equal(t, []string{"b", "a"}, ResolvePath("a", nodes))
}

func TestResolveMessages_AncestorChainOnly(t *testing.T) {
	nodes := branching()

	got := ResolveMessages("d", nodes)

	want := []Message{
		{Role: RoleUser, Content: "p-r"},
		{Role: RoleModel, Content: "a-r"},
		{Role: RoleUser, Content: "p-c"},
		{Role: RoleModel, Content: "a-c"},
		{Role: RoleUser, Content: "p-d"},
		{Role: RoleModel, Content: "a-d"},
	}
	assert.Equal(t, want, got)
}

func TestResolveMessages_EveryNode(t *testing.T) {
	nodes := branching()
	index := Index(nodes)

	for _, n := range nodes {
		path := ResolvePath(n.ID, nodes)
		msgs := Messages(path, nodes)

		require.Len(t, msgs, 2*len(path), "node %s", n.ID)
		for i, id := range path {
			assert.Equal(t, index[id].Prompt, msgs[2*i].Content)
			assert.Equal(t, RoleUser, msgs[2*i].Role)
			assert.Equal(t, index[id].Response, msgs[2*i+1].Content)
			assert.Equal(t, RoleModel, msgs[2*i+1].Role)
		}
		assert.Equal(t, n.ID, path[len(path)-1])
	}
}

func TestResolveMessages_SingleRootFollowUp(t *testing.T) {
	nodes := []Node{{ID: "1", Prompt: "Hi", Response: "Hello", Timestamp: "2025-01-01T00:00:00Z"}}

	got := ResolveMessages("1", nodes)

	assert.Equal(t, []Message{
		{Role: RoleUser, Content: "Hi"},
		{Role: RoleModel, Content: "Hello"},
	}, got)
}

func TestMessages_SkipsUnknownIDs(t *testing.T) {
	nodes := branching()

	got := Messages([]string{"r", "ghost"}, nodes)

	assert.Len(t, got, 2)
	assert.Empty(t, Messages(nil, nodes))
}

func TestTree_Validate(t *testing.T) {
	ok := Tree{Nodes: branching()}
	require.NoError(t, ok.Validate())

	dup := Tree{Nodes: append(branching(), Node{ID: "a"})}
	err := dup.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDuplicateNode)
}

func TestTree_Branches(t *testing.T) {
	tr := Tree{Nodes: branching()}

	roots := tr.Branches()

	require.Len(t, roots, 2)
	assert.Equal(t, "r", roots[0].ID)
	assert.Equal(t, "x", roots[1].ID)
	require.Len(t, roots[0].Children, 2)
	assert.Equal(t, "a", roots[0].Children[0].ID)
	assert.Equal(t, "c", roots[0].Children[1].ID)
	assert.Equal(t, "b", roots[0].Children[0].Children[0].ID)
	assert.Empty(t, roots[1].Children)
}

func TestTree_BranchesBreaksCycles(t *testing.T) {
	tr := Tree{Nodes: []Node{
		{ID: "tail", ParentID: "y"},
		{ID: "x", ParentID: "z"},
		{ID: "y", ParentID: "x"},
		{ID: "z", ParentID: "y"},
		{ID: "self", ParentID: "self"},
	}}

	roots := tr.Branches()

	require.Len(t, roots, 2)
	assert.Equal(t, "x", roots[0].ID)
	assert.Equal(t, "self", roots[1].ID)
	require.Len(t, roots[0].Children, 1)
	y := roots[0].Children[0]
	assert.Equal(t, "y", y.ID)
	require.Len(t, y.Children, 2)
	assert.Equal(t, "tail", y.Children[0].ID)
	assert.Equal(t, "z", y.Children[1].ID)

	assert.Equal(t, map[string]int{"x": 0, "y": 1, "tail": 2, "z": 2, "self": 0}, tr.Depth())
	assert.Equal(t, []string{"self", "tail", "z"}, tr.Leaves())
}

func TestTree_DepthAndLeaves(t *testing.T) {
	tr := Tree{Nodes: branching()}

	depth := tr.Depth()
	assert.Equal(t, 0, depth["r"])
	assert.Equal(t, 1, depth["a"])
	assert.Equal(t, 2, depth["d"])

	assert.Equal(t, []string{"b", "d", "x"}, tr.Leaves())
}
