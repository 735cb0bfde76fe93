package world

import (
	"github.com/traintastic/traintastic-go/internal/errs"
	"github.com/traintastic/traintastic-go/internal/object"
	"github.com/traintastic/traintastic-go/internal/value"
)

func errOutOfRange(x, y int) error {
	return errs.New(errs.OutOfRange, "tile (%d, %d) is outside the board's bounds", x, y)
}

const BoardClassID object.ClassID = "board"

// TileID identifies one tile's shape/kind at the granularity this
// implementation needs (straight track, turnouts, signals, sensor tiles,
// blank).
type TileID int64

const (
	TileNone TileID = iota
	TileStraight
	TileCurve
	TileTurnoutLeft
	TileTurnoutRight
	TileSensor
	TileSignal
)

// Tile is one cell of a Board's grid: its shape/kind and rotation, plus an
// optional address into an InputModule/OutputModule/Decoder it represents
// on the layout.
type Tile struct {
	ID       TileID
	Rotation int
	ObjectID string // empty if the tile has no linked hardware object
}

// Board is a world-level IdObject holding a rectangular grid of Tiles.
// The grid
// is a dense slice; boards are small enough that a sparse map buys
// nothing.
type Board struct {
	object.IdObjectBase

	name   *object.Property
	width  *object.Property
	height *object.Property

	tiles []Tile
}

func newBoard(w *World, id string) *Board {
	b := &Board{IdObjectBase: object.NewIdObjectBase(BoardClassID, id)}
	b.name = object.NewProperty("name", value.String, value.NewString(""), object.FlagReadWrite|object.FlagStore)
	b.width = object.NewProperty("width", value.Integer, value.NewInt(10), object.FlagReadWrite|object.FlagStore)
	b.height = object.NewProperty("height", value.Integer, value.NewInt(10), object.FlagReadWrite|object.FlagStore)
	b.AddItem(b.name)
	b.AddItem(b.width)
	b.AddItem(b.height)
	b.resize()
	return b
}

// Dims returns the board's current width and height in tiles.
func (b *Board) Dims() (int, int) { return b.dims() }

func (b *Board) dims() (int, int) {
	w, _ := value.ToInt(b.width.Value())
	h, _ := value.ToInt(b.height.Value())
	return int(w), int(h)
}

func (b *Board) resize() {
	w, h := b.dims()
	if w < 0 {
		w = 0
	}
	if h < 0 {
		h = 0
	}
	b.tiles = make([]Tile, w*h)
}

func (b *Board) index(x, y int) (int, bool) {
	w, h := b.dims()
	if x < 0 || x >= w || y < 0 || y >= h {
		return 0, false
	}
	return y*w + x, true
}

// GetTileData returns the tile at (x, y); the zero Tile (TileNone) for any
// coordinate outside the board's current bounds; unset tiles read as
// empty rather than erroring.
func (b *Board) GetTileData(x, y int) Tile {
	i, ok := b.index(x, y)
	if !ok {
		return Tile{}
	}
	return b.tiles[i]
}

// SetTileID places a tile's kind/rotation/linked object at (x, y).
// OutOfRange if the coordinate falls outside the board's current bounds.
func (b *Board) SetTileID(x, y int, t Tile) error {
	i, ok := b.index(x, y)
	if !ok {
		return errOutOfRange(x, y)
	}
	b.tiles[i] = t
	return nil
}

func init() {
	RegisterClass(BoardClassID, func(w *World, id string) object.Object { return newBoard(w, id) })
}
