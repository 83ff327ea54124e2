package drive

import (
	"fmt"
	"sort"
	"strings"

	"github.com/vityasyyy/dalam-kemasan/internal/model"
)

// childrenIndex maps a parent id ("" for root) to its direct children, sorted
// by id so cascades visit entities in a deterministic order.
func childrenIndex(entities map[string]model.Entity) map[string][]string {
	index := make(map[string][]string, len(entities))
	for id, e := range entities {
		index[e.ParentID] = append(index[e.ParentID], id)
	}
	for parent := range index {
		sort.Strings(index[parent])
	}
	return index
}

// descendants returns every descendant of id in post-order: children always
// precede their parent, so deleting in this order never leaves a dangling
// parent reference. id itself is not included.
func descendants(index map[string][]string, id string) ([]string, error) {
	var (
		out     []string
		visited = map[string]bool{id: true}
		walk    func(string) error
	)
	walk = func(parent string) error {
		for _, child := range index[parent] {
			if visited[child] {
				return fmt.Errorf("%w: %s reached twice below %s", ErrInvariant, child, id)
			}
			visited[child] = true
			if err := walk(child); err != nil {
				return err
			}
			out = append(out, child)
		}
		return nil
	}
	if err := walk(id); err != nil {
		return nil, err
	}
	return out, nil
}

// ancestors walks parent references from id upward and returns the chain,
// nearest parent first. A chain that revisits an entity is a corrupted tree.
func ancestors(entities map[string]model.Entity, id string) ([]string, error) {
	var chain []string
	seen := map[string]bool{id: true}
	current, ok := entities[id]
	if !ok {
		return nil, nil
	}
	for current.ParentID != "" {
		parentID := current.ParentID
		if seen[parentID] {
			return nil, fmt.Errorf("%w: cycle through %s", ErrInvariant, parentID)
		}
		seen[parentID] = true
		parent, ok := entities[parentID]
		if !ok {
			return nil, fmt.Errorf("%w: %s references missing parent %s", ErrInvariant, current.ID, parentID)
		}
		chain = append(chain, parentID)
		current = parent
	}
	return chain, nil
}

// location joins the names of id's ancestors from the root down, e.g.
// "Documents/Finance". Root-level entities have an empty location.
func location(entities map[string]model.Entity, id string) string {
	chain, err := ancestors(entities, id)
	if err != nil || len(chain) == 0 {
		return ""
	}
	names := make([]string, len(chain))
	for i, ancestorID := range chain {
		names[len(chain)-1-i] = entities[ancestorID].Name
	}
	return strings.Join(names, "/")
}
