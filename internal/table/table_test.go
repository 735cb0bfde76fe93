package table

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTable struct {
	headers []string
	rows    int
}

func (f *fakeTable) ColumnHeaders() []string { return f.headers }
func (f *fakeTable) RowCount() int           { return f.rows }
func (f *fakeTable) Cell(row, col int) string {
	return fmt.Sprintf("r%dc%d", row, col)
}

func TestSetRegionMaterializesCells(t *testing.T) {
	f := &fakeTable{headers: []string{"a", "b", "c"}, rows: 10}
	m := NewModel(f)

	var got [][]string
	var bounds [4]int
	m.OnRegionUpdated = func(rowMin, rowMax, colMin, colMax int, cells [][]string) {
		bounds = [4]int{rowMin, rowMax, colMin, colMax}
		got = cells
	}

	m.SetRegion(0, 1, 2, 4)
	require.Len(t, got, 3)
	assert.Equal(t, [4]int{2, 4, 0, 1}, bounds)
	assert.Equal(t, []string{"r2c0", "r2c1"}, got[0])
	assert.Equal(t, []string{"r4c0", "r4c1"}, got[2])
}

func TestSetRegionClampsToExtent(t *testing.T) {
	f := &fakeTable{headers: []string{"a", "b"}, rows: 2}
	m := NewModel(f)

	var got [][]string
	m.OnRegionUpdated = func(_, _, _, _ int, cells [][]string) { got = cells }

	m.SetRegion(0, 10, 0, 10)
	require.Len(t, got, 2)
	require.Len(t, got[0], 2)
}

func TestRefreshFiresRowCountAndHeaders(t *testing.T) {
	f := &fakeTable{headers: []string{"a"}, rows: 1}
	m := NewModel(f)

	var rowEvents []int
	var headerEvents [][]string
	m.OnRowCountChanged = func(rows int) { rowEvents = append(rowEvents, rows) }
	m.OnColumnHeadersChanged = func(h []string) { headerEvents = append(headerEvents, h) }

	m.Refresh()
	assert.Empty(t, rowEvents, "no change, no signal")
	assert.Empty(t, headerEvents)

	f.rows = 5
	m.Refresh()
	require.Equal(t, []int{5}, rowEvents)

	f.headers = []string{"a", "b"}
	m.Refresh()
	require.Len(t, headerEvents, 1)
	assert.Equal(t, []string{"a", "b"}, headerEvents[0])
}

func TestEmptyRegionPushesNothing(t *testing.T) {
	f := &fakeTable{headers: []string{"a"}, rows: 0}
	m := NewModel(f)
	fired := false
	m.OnRegionUpdated = func(_, _, _, _ int, _ [][]string) { fired = true }
	m.SetRegion(0, 0, 0, 10)
	assert.False(t, fired)
}
