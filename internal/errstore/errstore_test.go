package errstore

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/errwatchd/internal/classify"
)

func rec(id string) *classify.ErrorRecord {
	return &classify.ErrorRecord{ID: id, Message: "boom " + id}
}

func TestAddAndGet(t *testing.T) {
	s := New(10)
	s.Add(rec("a"))
	s.Add(nil)

	got, ok := s.Get("a")
	require.True(t, ok)
	assert.Equal(t, "boom a", got.Message)

	_, ok = s.Get("missing")
	assert.False(t, ok)
	assert.Equal(t, 1, s.Len())
}

func TestEvictsOldestAtCapacity(t *testing.T) {
	s := New(3)
	for i := 0; i < 5; i++ {
		s.Add(rec(fmt.Sprintf("e%d", i)))
	}

	assert.Equal(t, 3, s.Len())
	_, ok := s.Get("e0")
	assert.False(t, ok)
	_, ok = s.Get("e1")
	assert.False(t, ok)
	_, ok = s.Get("e4")
	assert.True(t, ok)
}

func TestRecentNewestFirst(t *testing.T) {
	s := New(10)
	for i := 0; i < 4; i++ {
		s.Add(rec(fmt.Sprintf("e%d", i)))
	}

	got := s.Recent(2)
	require.Len(t, got, 2)
	assert.Equal(t, "e3", got[0].ID)
	assert.Equal(t, "e2", got[1].ID)

	all := s.Recent(0)
	assert.Len(t, all, 4)
	assert.Equal(t, "e3", all[0].ID)
	assert.Equal(t, "e0", all[3].ID)

	assert.Len(t, s.Recent(100), 4)
}

func TestDefaultCapacity(t *testing.T) {
	s := New(0)
	for i := 0; i < DefaultCapacity+5; i++ {
		s.Add(rec(fmt.Sprintf("e%d", i)))
	}
	assert.Equal(t, DefaultCapacity, s.Len())
}
