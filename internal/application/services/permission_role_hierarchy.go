package services

import (
	"sort"

	"github.com/nexuscrm/kernel/pkg/models"
)

// ==================== Role Hierarchy ====================

const noParent = -1

// roleArena stores the role tree as parent indexes into a flat slice. Every
// walk is bounded by the number of roles, so a corrupt cycle in stored data
// terminates instead of looping.
type roleArena struct {
	ids      []string
	index    map[string]int
	parent   []int
	children [][]int
}

func newRoleArena(roles []models.Role) *roleArena {
	a := &roleArena{
		ids:      make([]string, len(roles)),
		index:    make(map[string]int, len(roles)),
		parent:   make([]int, len(roles)),
		children: make([][]int, len(roles)),
	}
	for i, r := range roles {
		a.ids[i] = r.ID
		a.index[r.ID] = i
	}
	for i, r := range roles {
		a.parent[i] = noParent
		if r.ParentRoleID == nil {
			continue
		}
		if p, ok := a.index[*r.ParentRoleID]; ok {
			a.parent[i] = p
			a.children[p] = append(a.children[p], i)
		}
	}
	return a
}

func (a *roleArena) has(roleID string) bool {
	_, ok := a.index[roleID]
	return ok
}

// parentOf returns the parent role id or "".
func (a *roleArena) parentOf(roleID string) string {
	i, ok := a.index[roleID]
	if !ok || a.parent[i] == noParent {
		return ""
	}
	return a.ids[a.parent[i]]
}

// ancestors returns the parent chain of roleID, nearest first.
func (a *roleArena) ancestors(roleID string) []string {
	i, ok := a.index[roleID]
	if !ok {
		return nil
	}
	var out []string
	for steps := 0; a.parent[i] != noParent && steps < len(a.ids); steps++ {
		i = a.parent[i]
		out = append(out, a.ids[i])
	}
	return out
}

// isAncestor reports whether ancestorID is strictly above roleID.
func (a *roleArena) isAncestor(ancestorID, roleID string) bool {
	for _, id := range a.ancestors(roleID) {
		if id == ancestorID {
			return true
		}
	}
	return false
}

// descendants returns every role strictly below roleID, sorted.
func (a *roleArena) descendants(roleID string) []string {
	root, ok := a.index[roleID]
	if !ok {
		return nil
	}
	visited := make([]bool, len(a.ids))
	visited[root] = true
	queue := append([]int(nil), a.children[root]...)
	var out []string
	for len(queue) > 0 {
		i := queue[0]
		queue = queue[1:]
		if visited[i] {
			continue
		}
		visited[i] = true
		out = append(out, a.ids[i])
		queue = append(queue, a.children[i]...)
	}
	sort.Strings(out)
	return out
}

// wouldCycle reports whether giving roleID the parent parentID closes a loop.
func (a *roleArena) wouldCycle(roleID, parentID string) bool {
	if roleID == parentID {
		return true
	}
	if !a.has(parentID) {
		return false
	}
	for _, id := range a.ancestors(parentID) {
		if id == roleID {
			return true
		}
	}
	return false
}

// cycles returns the sorted ids of roles that sit on a parent loop.
func (a *roleArena) cycles() []string {
	var out []string
	for i, id := range a.ids {
		j := i
		for steps := 0; steps < len(a.ids); steps++ {
			j = a.parent[j]
			if j == noParent {
				break
			}
			if j == i {
				out = append(out, id)
				break
			}
		}
	}
	sort.Strings(out)
	return out
}
