package tree

// ResolvePath walks parent links from target up to the root and returns the
// visited ids in root-first order. An empty target yields an empty path.
//
// The walk stops silently at a node without parent, at an id that is absent
// from nodes (a dangling reference truncates the path) or when an id repeats.
func ResolvePath(target string, nodes []Node) []string {
	if target == "" {
		return []string{}
	}

	index := Index(nodes)
	visited := make(map[string]struct{})
	toRoot := make([]string, 0)

	for id := target; id != ""; {
		node, ok := index[id]
		if !ok {
			break
		}
		if _, seen := visited[id]; seen {
			break
		}
		visited[id] = struct{}{}
		toRoot = append(toRoot, id)
		id = node.ParentID
	}

	path := make([]string, len(toRoot))
	for i, id := range toRoot {
		path[len(toRoot)-1-i] = id
	}
	return path
}

// Messages expands every id of path into its user prompt followed by the
// model response. Ids that are not present in nodes are skipped.
func Messages(path []string, nodes []Node) []Message {
	if len(path) == 0 {
		return []Message{}
	}

	index := Index(nodes)
	messages := make([]Message, 0, 2*len(path))
	for _, id := range path {
		node, ok := index[id]
		if !ok {
			continue
		}
		messages = append(messages,
			Message{Role: RoleUser, Content: node.Prompt},
			Message{Role: RoleModel, Content: node.Response},
		)
	}
	return messages
}

// ResolveMessages returns the context messages leading to target, inclusive.
func ResolveMessages(target string, nodes []Node) []Message {
	return Messages(ResolvePath(target, nodes), nodes)
}
