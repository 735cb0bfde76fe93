// Package table implements the streaming table-model contract: an object that implements Table can be projected to a client as a
// TableModel with three signals (column headers changed, row count changed,
// region updated). The server materializes rows only within the client's
// subscribed viewport and pushes that viewport's cells on every refresh.

package table

import "sync"

// Table is implemented by any object that can back a table model.
type Table interface {
	ColumnHeaders() []string
	RowCount() int
	Cell(row, col int) string
}

// Model is one client's live view over a Table: a viewport region whose
// cells are materialized each time they are pushed.
type Model struct {
	mu  sync.Mutex
	tbl Table

	colMin, colMax int
	rowMin, rowMax int
	lastRowCount   int
	lastHeaders    []string

	// Signal callbacks, wired by the session layer to wire events.
	OnColumnHeadersChanged func(headers []string)
	OnRowCountChanged      func(rows int)
	OnRegionUpdated        func(rowMin, rowMax, colMin, colMax int, cells [][]string)
}

// NewModel builds a Model over t with an empty viewport. The first
// SetRegion call materializes rows.
func NewModel(t Table) *Model {
	return &Model{
		tbl:          t,
		rowMax:       -1,
		colMax:       -1,
		lastRowCount: t.RowCount(),
		lastHeaders:  t.ColumnHeaders(),
	}
}

func (m *Model) ColumnHeaders() []string { return m.tbl.ColumnHeaders() }
func (m *Model) RowCount() int           { return m.tbl.RowCount() }

// SetRegion subscribes the client to a viewport. Bounds are clamped to the table's current extent;
// the newly materialized cells are pushed through OnRegionUpdated.
func (m *Model) SetRegion(colMin, colMax, rowMin, rowMax int) {
	m.mu.Lock()
	cols := len(m.tbl.ColumnHeaders())
	rows := m.tbl.RowCount()
	if colMax >= cols {
		colMax = cols - 1
	}
	if rowMax >= rows {
		rowMax = rows - 1
	}
	if colMin < 0 {
		colMin = 0
	}
	if rowMin < 0 {
		rowMin = 0
	}
	m.colMin, m.colMax = colMin, colMax
	m.rowMin, m.rowMax = rowMin, rowMax
	m.mu.Unlock()

	m.pushRegion()
}

// Refresh re-reads the backing table and fires whichever signals apply:
// headers changed, row count changed, and the current region's cells.
// The session layer calls this when the backing object reports a change.
func (m *Model) Refresh() {
	m.mu.Lock()
	headers := m.tbl.ColumnHeaders()
	rows := m.tbl.RowCount()
	headersChanged := !equalStrings(headers, m.lastHeaders)
	rowsChanged := rows != m.lastRowCount
	m.lastHeaders = headers
	m.lastRowCount = rows
	m.mu.Unlock()

	if headersChanged && m.OnColumnHeadersChanged != nil {
		m.OnColumnHeadersChanged(headers)
	}
	if rowsChanged && m.OnRowCountChanged != nil {
		m.OnRowCountChanged(rows)
	}
	m.pushRegion()
}

// pushRegion materializes the current viewport and fires OnRegionUpdated.
// An empty viewport pushes nothing.
func (m *Model) pushRegion() {
	m.mu.Lock()
	colMin, colMax := m.colMin, m.colMax
	rowMin, rowMax := m.rowMin, m.rowMax
	rows := m.tbl.RowCount()
	if rowMax >= rows {
		rowMax = rows - 1
	}
	if rowMax < rowMin || colMax < colMin {
		m.mu.Unlock()
		return
	}
	cells := make([][]string, 0, rowMax-rowMin+1)
	for r := rowMin; r <= rowMax; r++ {
		row := make([]string, 0, colMax-colMin+1)
		for c := colMin; c <= colMax; c++ {
			row = append(row, m.tbl.Cell(r, c))
		}
		cells = append(cells, row)
	}
	m.mu.Unlock()

	if m.OnRegionUpdated != nil {
		m.OnRegionUpdated(rowMin, rowMax, colMin, colMax, cells)
	}
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
