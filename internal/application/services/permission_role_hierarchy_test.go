package services

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/nexuscrm/kernel/pkg/models"
)

func testRoles() []models.Role {
	return []models.Role{
		{ID: "ceo", Name: "CEO"},
		{ID: "cfo", Name: "CFO", ParentRoleID: strPtr("ceo")},
		{ID: "cto", Name: "CTO", ParentRoleID: strPtr("ceo")},
		{ID: "eng", Name: "Engineering", ParentRoleID: strPtr("cto")},
		{ID: "orphan", Name: "Orphan", ParentRoleID: strPtr("missing")},
	}
}

func TestRoleArena_Walks(t *testing.T) {
	a := newRoleArena(testRoles())

	assert.Equal(t, []string{"cto", "ceo"}, a.ancestors("eng"))
	assert.Equal(t, []string{"cfo", "cto", "eng"}, a.descendants("ceo"))
	assert.Empty(t, a.descendants("eng"))
	assert.Nil(t, a.ancestors("unknown"))

	assert.Equal(t, "cto", a.parentOf("eng"))
	assert.Equal(t, "", a.parentOf("ceo"))
	assert.Equal(t, "", a.parentOf("orphan"), "a dangling parent is treated as a root")

	assert.True(t, a.isAncestor("ceo", "eng"))
	assert.False(t, a.isAncestor("eng", "ceo"))
	assert.False(t, a.isAncestor("cfo", "eng"))
	assert.False(t, a.isAncestor("eng", "eng"))
}

func TestRoleArena_WouldCycle(t *testing.T) {
	a := newRoleArena(testRoles())

	tests := []struct {
		role, parent string
		want         bool
	}{
		{"eng", "eng", true},
		{"ceo", "eng", true},
		{"cto", "eng", true},
		{"eng", "cfo", false},
		{"new", "eng", false},
		{"ceo", "unknown", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, a.wouldCycle(tt.role, tt.parent), "%s -> %s", tt.role, tt.parent)
	}
}

func TestRoleArena_StoredCycleTerminates(t *testing.T) {
	a := newRoleArena([]models.Role{
		{ID: "a", Name: "A", ParentRoleID: strPtr("c")},
		{ID: "b", Name: "B", ParentRoleID: strPtr("a")},
		{ID: "c", Name: "C", ParentRoleID: strPtr("b")},
		{ID: "d", Name: "D", ParentRoleID: strPtr("a")},
	})

	assert.Equal(t, []string{"a", "b", "c"}, a.cycles())
	assert.Len(t, a.ancestors("d"), 4, "walks are bounded by the number of roles")
	assert.ElementsMatch(t, []string{"b", "c", "d"}, a.descendants("a"))
	assert.Empty(t, newRoleArena(testRoles()).cycles())
}
