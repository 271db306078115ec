package keymap

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewTablePrefersLowestLevel(t *testing.T) {
	table := NewTable([]Entry{
		{Symbol: 'a', Code: 30, Level: 1},
		{Symbol: 'a', Code: 30, Level: 0},
	})

	entry, ok := table.Find('a')
	assert.True(t, ok)
	assert.Equal(t, 0, entry.Level)
	assert.Equal(t, 30, entry.Code)
}

func TestFindMissingSymbol(t *testing.T) {
	table := NewTable([]Entry{{Symbol: 'a', Code: 30, Level: 0}})

	_, ok := table.Find('z')
	assert.False(t, ok)
}

func TestFindShiftedSymbol(t *testing.T) {
	// 'A' (shifted) only available at level 1 on the 'a' key.
	table := NewTable([]Entry{
		{Symbol: 'a', Code: 30, Level: 0},
		{Symbol: 'A', Code: 30, Level: 1},
	})

	entry, ok := table.Find('A')
	assert.True(t, ok)
	assert.Equal(t, 1, entry.Level)
	assert.Equal(t, 30, entry.Code)
}

func TestEmptyTable(t *testing.T) {
	table := NewTable(nil)
	assert.Equal(t, 0, table.Len())
	_, ok := table.Find('a')
	assert.False(t, ok)
}
