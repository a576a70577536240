package layout

import (
	"fmt"
	"strings"
)

// Geometry holds the fixed grid constants of a timeline diagram
type Geometry struct {
	BlockWidth  float64 `yaml:"block_width" json:"block_width"`
	BlockHeight float64 `yaml:"block_height" json:"block_height"`
	Gap         float64 `yaml:"gap" json:"gap"`
	LeftPad     float64 `yaml:"left_pad" json:"left_pad"`   // room for lane labels
	RightPad    float64 `yaml:"right_pad" json:"right_pad"` // plain margin
	ArrowPad    float64 `yaml:"arrow_pad" json:"arrow_pad"` // keeps the continuation arrow inside the canvas
	TopPad      float64 `yaml:"top_pad" json:"top_pad"`
	TitleGap    float64 `yaml:"title_gap" json:"title_gap"`
	LaneGap     float64 `yaml:"lane_gap" json:"lane_gap"`
	BottomPad   float64 `yaml:"bottom_pad" json:"bottom_pad"`
	Radius      float64 `yaml:"radius" json:"radius"`
	LineWidth   float64 `yaml:"line_width" json:"line_width"`
}

// DefaultGeometry returns the standard block grid
func DefaultGeometry() Geometry {
	return Geometry{
		BlockWidth:  120,
		BlockHeight: 36,
		Gap:         10,
		LeftPad:     135,
		RightPad:    10,
		ArrowPad:    48,
		TopPad:      5,
		TitleGap:    20,
		LaneGap:     30,
		BottomPad:   20,
		Radius:      10,
		LineWidth:   3,
	}
}

// ColumnWidth is the horizontal distance between two adjacent heights
func (g Geometry) ColumnWidth() float64 { return g.BlockWidth + g.Gap }

// Palette holds the colors used by a layout
type Palette struct {
	Qubic        string `yaml:"qubic" json:"qubic"`
	Orphan       string `yaml:"orphan" json:"orphan"`
	Main         string `yaml:"main" json:"main"`
	StrokeMain   string `yaml:"stroke_main" json:"stroke_main"`
	StrokeOrphan string `yaml:"stroke_orphan" json:"stroke_orphan"`
	CellStroke   string `yaml:"cell_stroke" json:"cell_stroke"`
	Grid         string `yaml:"grid" json:"grid"`
	RunBand      string `yaml:"run_band" json:"run_band"`
	LabelMain    string `yaml:"label_main" json:"label_main"`
	LabelOrphan  string `yaml:"label_orphan" json:"label_orphan"`
}

// DefaultPalette returns the standard colors: deep green main strokes, deep red orphan strokes
func DefaultPalette() Palette {
	return Palette{
		Qubic:        "#ffd166",
		Orphan:       "#f4a6a6",
		Main:         "#b7e4c7",
		StrokeMain:   "#0f7a3a",
		StrokeOrphan: "#c62828",
		CellStroke:   "rgba(0,0,0,0.18)",
		Grid:         "#e5e7eb",
		RunBand:      "rgba(255,209,102,0.18)",
		LabelMain:    "#114353",
		LabelOrphan:  "#6c3635",
	}
}

// DefaultExplorerBase is the block explorer prefix for cell links
const DefaultExplorerBase = "https://blocks.p2pool.observer/block/"

// Config bundles everything New needs besides the run
type Config struct {
	Geometry     Geometry `yaml:"geometry" json:"geometry"`
	Palette      Palette  `yaml:"palette" json:"palette"`
	ExplorerBase string   `yaml:"explorer_base" json:"explorer_base"`
}

// DefaultConfig returns the default geometry, palette and explorer
func DefaultConfig() Config {
	return Config{
		Geometry:     DefaultGeometry(),
		Palette:      DefaultPalette(),
		ExplorerBase: DefaultExplorerBase,
	}
}

// Point is a 2D coordinate
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Rect is an axis-aligned rectangle
type Rect struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// Contains reports whether (x, y) lies inside r, edges included
func (r Rect) Contains(x, y float64) bool {
	return x >= r.X && x <= r.X+r.W && y >= r.Y && y <= r.Y+r.H
}

// Center returns the midpoint of r
func (r Rect) Center() Point {
	return Point{X: r.X + r.W/2, Y: r.Y + r.H/2}
}

// Path is an open polyline
type Path struct {
	Lane    Lane    `json:"lane,omitempty"`
	Points  []Point `json:"points"`
	Stroke  string  `json:"stroke"`
	Width   float64 `json:"width"`
	Opacity float64 `json:"opacity"`
}

// D renders the polyline as SVG path data
func (p Path) D() string {
	var sb strings.Builder
	for i, pt := range p.Points {
		if i > 0 {
			sb.WriteByte(' ')
		}
		cmd := "L"
		if i == 0 {
			cmd = "M"
		}
		fmt.Fprintf(&sb, "%s%s %s", cmd, FormatNumber(pt.X), FormatNumber(pt.Y))
	}
	return sb.String()
}

// Circle is a filled dot
type Circle struct {
	Center Point   `json:"center"`
	R      float64 `json:"r"`
}

// FormatNumber prints a coordinate with at most two decimals and no trailing zeros
func FormatNumber(f float64) string {
	return strings.TrimSuffix(strings.TrimRight(fmt.Sprintf("%.2f", f), "0"), ".")
}
