package world

import (
	"sort"

	"github.com/traintastic/traintastic-go/internal/object"
	"github.com/traintastic/traintastic-go/internal/value"
)

// The World backs the client's object-list table model: one row per registered top-level IdObject, sorted by
// id so row order is stable across refreshes.

func (w *World) ColumnHeaders() []string { return []string{"id", "class", "name"} }

func (w *World) RowCount() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.objects)
}

func (w *World) Cell(row, col int) string {
	w.mu.RLock()
	ids := make([]string, 0, len(w.objects))
	for id := range w.objects {
		ids = append(ids, id)
	}
	w.mu.RUnlock()
	sort.Strings(ids)
	if row < 0 || row >= len(ids) {
		return ""
	}
	o, ok := w.Object(ids[row])
	if !ok {
		return ""
	}
	switch col {
	case 0:
		return ids[row]
	case 1:
		return string(o.ClassID())
	case 2:
		if item, ok := o.Item("name"); ok {
			if p, ok := object.AsProperty(item); ok {
				s, _ := value.ToString(p.Value())
				return s
			}
		}
		return ""
	default:
		return ""
	}
}
