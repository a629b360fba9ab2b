package catalog

/*
CategoryNode
  - One node of a site's category tree
  - ID is the canonical URL of the node's page and doubles as the leaf id
  - Children keep discovery order
  - A node is a leaf iff it has no children once its expansion is finished,
    and only leaves carry a ListingSeed
  - ParentID is a weak back-reference; the tree is owned from the root down
*/
type CategoryNode struct {
	ID          string
	Name        string
	URL         string
	ParentID    string
	Depth       int
	Children    []*CategoryNode
	IsLeaf      bool
	ListingSeed string
}

// Leaf is the flattened view of a leaf node handed to the enumeration phase.
type Leaf struct {
	ID    string
	Name  string
	URL   string
	Seed  string
	Depth int
	// Path holds the names from the root down to the leaf itself.
	Path []string
}

// Leaves returns the leaves below n in pre-order, which is discovery order.
func (n *CategoryNode) Leaves() []Leaf {
	if n == nil {
		return nil
	}

	type frame struct {
		node *CategoryNode
		path []string
	}

	var leaves []Leaf
	stack := []frame{{node: n, path: []string{n.Name}}}
	for len(stack) > 0 {
		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if top.node.IsLeaf {
			leaves = append(leaves, Leaf{
				ID:    top.node.ID,
				Name:  top.node.Name,
				URL:   top.node.URL,
				Seed:  top.node.ListingSeed,
				Depth: top.node.Depth,
				Path:  top.path,
			})
			continue
		}

		for i := len(top.node.Children) - 1; i >= 0; i-- {
			child := top.node.Children[i]
			path := make([]string, len(top.path), len(top.path)+1)
			copy(path, top.path)
			stack = append(stack, frame{node: child, path: append(path, child.Name)})
		}
	}
	return leaves
}

// Count returns the number of nodes in the tree rooted at n.
func (n *CategoryNode) Count() int {
	if n == nil {
		return 0
	}
	total := 0
	stack := []*CategoryNode{n}
	for len(stack) > 0 {
		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		total++
		stack = append(stack, top.Children...)
	}
	return total
}
