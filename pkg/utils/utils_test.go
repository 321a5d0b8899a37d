package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGenerateID(t *testing.T) {
	id := GenerateID()
	assert.True(t, IsValidUUID(id))
	assert.NotEqual(t, id, GenerateID())
	assert.False(t, IsValidUUID("not-a-uuid"))
}

func TestStableID(t *testing.T) {
	a := StableID("standard_user", "account")
	assert.True(t, IsValidUUID(a))
	assert.Equal(t, a, StableID("standard_user", "account"))
	assert.NotEqual(t, a, StableID("standard_user", "contact"))
}

func TestToBool(t *testing.T) {
	tests := []struct {
		in   interface{}
		want bool
	}{
		{nil, false},
		{true, true},
		{int64(1), true},
		{int64(0), false},
		{[]byte("1"), true},
		{"yes", true},
		{"off", false},
		{float64(2), true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ToBool(tt.in), "%v", tt.in)
	}
}
