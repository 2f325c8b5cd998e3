package world

import (
	"fmt"
	"math"
)

// Tile is a grid cell index.
type Tile struct {
	X int `json:"x" msgpack:"x" yaml:"x"`
	Y int `json:"y" msgpack:"y" yaml:"y"`
}

func (t Tile) String() string { return fmt.Sprintf("(%d,%d)", t.X, t.Y) }

func (t Tile) less(o Tile) bool {
	if t.X != o.X {
		return t.X < o.X
	}
	return t.Y < o.Y
}

// Resolution is the tile size in world units.
type Resolution struct {
	W float64 `json:"w" msgpack:"w" yaml:"w"`
	H float64 `json:"h" msgpack:"h" yaml:"h"`
}

// Valid reports whether both dimensions are positive and finite.
func (r Resolution) Valid() bool {
	return r.W > 0 && r.H > 0 && !math.IsInf(r.W, 0) && !math.IsInf(r.H, 0)
}

// TileOf maps a position to its tile.
//
// By default each axis uses floor(|p| / size), so positions mirrored
// across the origin share a tile index. With signed set, each axis uses
// floor(p / size) and negative positions get negative tiles.
func TileOf(x, y float64, res Resolution, signed bool) Tile {
	return Tile{X: axis(x, res.W, signed), Y: axis(y, res.H, signed)}
}

func axis(p, size float64, signed bool) int {
	if math.IsNaN(p) || math.IsInf(p, 0) {
		return 0
	}
	if !signed {
		p = math.Abs(p)
	}
	return int(math.Floor(p / size))
}
