// Package layout turns a detected run into a two-lane timeline diagram.
//
// New is a pure function of the run and the configuration: every position,
// color, label and link target is resolved here, so a consumer only needs to
// draw rectangles, polylines, circles and text and bind hover/click events.
package layout

import (
	"fmt"
	"math"
	"strings"

	"github.com/username/orphanrun/pkg/core"
)

// Lane identifies one of the two horizontal lanes
type Lane string

const (
	LaneMain   Lane = "main"
	LaneOrphan Lane = "orphan"
)

// DisplayName is the lane name shown in tooltips
func (l Lane) DisplayName() string {
	if l == LaneMain {
		return "Main"
	}
	return "Orphan"
}

// FillTier is the coloring class of a block cell
type FillTier string

const (
	FillQubic  FillTier = "qubic"
	FillOrphan FillTier = "orphan"
	FillMain   FillTier = "main"
)

const (
	labelLen       = 8
	tooltipHashLen = 18

	dotSpacing   = 8
	dotToLineGap = 12
	leadLength   = 22
	arrowLength  = 24
)

// Title describes the run heading
type Title struct {
	Range  string `json:"range"`
	Length int64  `json:"length"`
	Date   string `json:"date"`
}

// Tick is one column of the height axis
type Tick struct {
	Height     int64   `json:"height"`
	X          float64 `json:"x"`
	LabelY     float64 `json:"label_y"`
	GridTop    float64 `json:"grid_top"`
	GridBottom float64 `json:"grid_bottom"`
}

// LaneGuide is a lane centerline and its label
type LaneGuide struct {
	Lane    Lane    `json:"lane"`
	Name    string  `json:"name"`
	CenterY float64 `json:"center_y"`
	Label   Point   `json:"label"`
	Color   string  `json:"color"`
}

// Tooltip is the hover payload of a block cell
type Tooltip struct {
	Lane     string `json:"lane"`
	Height   int64  `json:"height"`
	Hash     string `json:"hash,omitempty"`
	FullHash string `json:"full_hash,omitempty"`
	Time     string `json:"time,omitempty"`
}

// Lines returns the tooltip as display lines, skipping absent fields
func (t Tooltip) Lines() []string {
	lines := []string{fmt.Sprintf("%s · h=%d", t.Lane, t.Height)}
	if t.Hash != "" {
		lines = append(lines, "hash: "+t.Hash)
	}
	if t.Time != "" {
		lines = append(lines, "time: "+t.Time)
	}
	return lines
}

// Cell is one drawable block
type Cell struct {
	Lane       Lane     `json:"lane"`
	Height     int64    `json:"height"`
	Rect       Rect     `json:"rect"`
	Radius     float64  `json:"radius"`
	Fill       FillTier `json:"fill"`
	Color      string   `json:"color"`
	Stroke     string   `json:"stroke"`
	Label      string   `json:"label"`
	LabelAt    Point    `json:"label_at"`
	LabelColor string   `json:"label_color"`
	Href       string   `json:"href,omitempty"`
	Tooltip    Tooltip  `json:"tooltip"`
}

// Continuation signals that the mainchain extends beyond the view
type Continuation struct {
	Dots      []Circle `json:"dots"`
	Lead      Path     `json:"lead"`
	Arrow     Path     `json:"arrow"`
	Arrowhead []Point  `json:"arrowhead"`
	Color     string   `json:"color"`
}

// Layout is the fully resolved diagram of one run
type Layout struct {
	StartHeight int64   `json:"start_height"`
	EndHeight   int64   `json:"end_height"`
	MinHeight   int64   `json:"min_height"`
	MaxHeight   int64   `json:"max_height"`
	Columns     int     `json:"columns"`
	Width       float64 `json:"width"`
	Height      float64 `json:"height"`

	Title        Title         `json:"title"`
	Ticks        []Tick        `json:"ticks"`
	Band         Rect          `json:"band"`
	BandColor    string        `json:"band_color"`
	GridColor    string        `json:"grid_color"`
	Lanes        []LaneGuide   `json:"lanes"`
	Cells        []Cell        `json:"cells"`
	Connectors   []Path        `json:"connectors"`
	Fork         *Path         `json:"fork,omitempty"`
	Continuation *Continuation `json:"continuation,omitempty"`
}

// grid carries the per-run coordinates shared by every element
type grid struct {
	cfg      Config
	minH     int64
	top      float64
	xs       []float64 // left edge of each column
	mainY    float64   // top edge of the main lane cells
	orphanY  float64
	mainCY   float64
	orphanCY float64
}

func (g *grid) left(h int64) float64 { return g.xs[h-g.minH] }

func (g *grid) center(h int64) float64 { return g.left(h) + g.cfg.Geometry.BlockWidth/2 }

// New lays out run with cfg
func New(run core.Run, cfg Config) *Layout {
	geo := cfg.Geometry
	minH, maxH := VisibleSpan(run)
	cols := int(maxH - minH + 1)

	top := geo.TopPad + geo.TitleGap
	g := &grid{
		cfg:     cfg,
		minH:    minH,
		top:     top,
		xs:      make([]float64, cols),
		mainY:   top,
		orphanY: top + geo.BlockHeight + geo.LaneGap,
	}
	g.mainCY = g.mainY + geo.BlockHeight/2
	g.orphanCY = g.orphanY + geo.BlockHeight/2
	for i := range g.xs {
		g.xs[i] = geo.LeftPad + float64(i)*geo.ColumnWidth()
	}

	l := &Layout{
		StartHeight: run.StartHeight,
		EndHeight:   run.EndHeight,
		MinHeight:   minH,
		MaxHeight:   maxH,
		Columns:     cols,
		Width:       geo.LeftPad + float64(cols)*geo.ColumnWidth() - geo.Gap + geo.RightPad + geo.ArrowPad,
		Height:      top + geo.BlockHeight*2 + geo.LaneGap + geo.BottomPad,
		Title:       titleFor(run),
		BandColor:   cfg.Palette.RunBand,
		GridColor:   cfg.Palette.Grid,
	}

	for h := minH; h <= maxH; h++ {
		l.Ticks = append(l.Ticks, Tick{
			Height:     h,
			X:          g.center(h),
			LabelY:     top - 12,
			GridTop:    top - 6,
			GridBottom: l.Height - 8,
		})
	}

	l.Band = Rect{
		X: g.left(run.StartHeight) - math.Max(4, geo.Gap/2),
		Y: top,
		W: float64(run.Length())*geo.ColumnWidth() - geo.Gap + math.Max(8, geo.Gap),
		H: geo.BlockHeight*2 + geo.LaneGap + 18,
	}

	l.Lanes = []LaneGuide{
		{Lane: LaneMain, Name: "Mainchain", CenterY: g.mainCY, Label: Point{X: 14, Y: g.mainCY}, Color: cfg.Palette.LabelMain},
		{Lane: LaneOrphan, Name: "Orphan", CenterY: g.orphanCY, Label: Point{X: 14, Y: g.orphanCY + 4}, Color: cfg.Palette.StrokeOrphan},
	}

	mainByH := byHeight(run.MainchainWindow)
	orphanByH := byHeight(run.OrphanBlocks)

	l.Connectors = append(l.Connectors, g.laneConnectors(LaneMain, mainByH, maxH, g.mainCY, cfg.Palette.StrokeMain)...)
	l.Connectors = append(l.Connectors, g.laneConnectors(LaneOrphan, orphanByH, maxH, g.orphanCY, cfg.Palette.StrokeOrphan)...)
	l.Fork = g.forkElbow(run.StartHeight, mainByH, orphanByH)
	l.Continuation = g.continuation(mainByH, maxH)

	for h := minH; h <= maxH; h++ {
		if b, ok := mainByH[h]; ok {
			l.Cells = append(l.Cells, g.cell(LaneMain, b, g.mainY))
		}
	}
	for h := minH; h <= maxH; h++ {
		if b, ok := orphanByH[h]; ok {
			l.Cells = append(l.Cells, g.cell(LaneOrphan, b, g.orphanY))
		}
	}
	return l
}

// VisibleSpan returns the column span of a run: its heights, every block
// height, and one column of context on each side.
func VisibleSpan(run core.Run) (int64, int64) {
	minH, maxH := run.StartHeight-1, run.EndHeight+1
	for _, bs := range [][]core.BlockRecord{run.OrphanBlocks, run.MainchainWindow} {
		for _, b := range bs {
			if b.Height < minH {
				minH = b.Height
			}
			if b.Height > maxH {
				maxH = b.Height
			}
		}
	}
	return minH, maxH
}

func (g *grid) cell(lane Lane, b core.BlockRecord, y float64) Cell {
	geo, pal := g.cfg.Geometry, g.cfg.Palette
	x := g.left(b.Height)
	fill := FillFor(b, lane)
	labelColor := pal.LabelMain
	if lane == LaneOrphan {
		labelColor = pal.LabelOrphan
	}
	return Cell{
		Lane:       lane,
		Height:     b.Height,
		Rect:       Rect{X: x, Y: y, W: geo.BlockWidth, H: geo.BlockHeight},
		Radius:     geo.Radius,
		Fill:       fill,
		Color:      pal.colorOf(fill),
		Stroke:     pal.CellStroke,
		Label:      ShortLabel(b.Hash),
		LabelAt:    Point{X: x + geo.BlockWidth/2, Y: y + geo.BlockHeight/2 + 0.5},
		LabelColor: labelColor,
		Href:       ExplorerLink(g.cfg.ExplorerBase, b.Hash),
		Tooltip:    TooltipFor(b, lane),
	}
}

// laneConnectors joins consecutive present heights; single blocks get no path
func (g *grid) laneConnectors(lane Lane, present map[int64]core.BlockRecord, maxH int64, y float64, stroke string) []Path {
	var paths []Path
	var seg []Point
	flush := func() {
		if len(seg) >= 2 {
			paths = append(paths, Path{Lane: lane, Points: seg, Stroke: stroke, Width: g.cfg.Geometry.LineWidth, Opacity: 0.6})
		}
		seg = nil
	}
	for h := g.minH; h <= maxH; h++ {
		if _, ok := present[h]; !ok {
			flush()
			continue
		}
		seg = append(seg, Point{X: g.center(h), Y: y})
	}
	flush()
	return paths
}

// forkElbow runs from the bottom of the leftmost mainchain column down to the
// orphan lane, then right to the first orphan block of the run.
func (g *grid) forkElbow(start int64, mainByH, orphanByH map[int64]core.BlockRecord) *Path {
	if _, ok := mainByH[g.minH]; !ok {
		return nil
	}
	if _, ok := orphanByH[start]; !ok {
		return nil
	}
	x1 := g.center(g.minH)
	y1 := g.mainY + g.cfg.Geometry.BlockHeight
	x2 := g.left(start)
	return &Path{
		Lane:    LaneOrphan,
		Points:  []Point{{X: x1, Y: y1}, {X: x1, Y: g.orphanCY}, {X: x2, Y: g.orphanCY}},
		Stroke:  g.cfg.Palette.StrokeOrphan,
		Width:   g.cfg.Geometry.LineWidth,
		Opacity: 0.95,
	}
}

// continuation draws fading dots and a lead-in before the first mainchain
// block and an arrow after the last one.
func (g *grid) continuation(mainByH map[int64]core.BlockRecord, maxH int64) *Continuation {
	first, last, found := int64(0), int64(0), false
	for h := g.minH; h <= maxH; h++ {
		if _, ok := mainByH[h]; ok {
			if !found {
				first = h
				found = true
			}
			last = h
		}
	}
	if !found {
		return nil
	}

	geo := g.cfg.Geometry
	color := g.cfg.Palette.StrokeMain
	y := g.mainCY
	firstLeft := g.left(first)
	leadStart := firstLeft - leadLength

	r := geo.LineWidth / 2
	lastDot := leadStart - dotToLineGap - r
	dots := []Circle{
		{Center: Point{X: lastDot - 2*dotSpacing, Y: y}, R: r},
		{Center: Point{X: lastDot - dotSpacing, Y: y}, R: r},
		{Center: Point{X: lastDot, Y: y}, R: r},
	}

	lastRight := g.left(last) + geo.BlockWidth
	end := lastRight + arrowLength
	// arrowhead marker: 5x4 units scaled by line width, anchored 4 units behind the tip
	w := geo.LineWidth
	head := []Point{
		{X: end - 4*w, Y: y - 2*w},
		{X: end + w, Y: y},
		{X: end - 4*w, Y: y + 2*w},
	}

	return &Continuation{
		Dots:      dots,
		Lead:      Path{Lane: LaneMain, Points: []Point{{X: leadStart, Y: y}, {X: firstLeft, Y: y}}, Stroke: color, Width: w, Opacity: 0.95},
		Arrow:     Path{Lane: LaneMain, Points: []Point{{X: lastRight, Y: y}, {X: end, Y: y}}, Stroke: color, Width: w, Opacity: 1},
		Arrowhead: head,
		Color:     color,
	}
}

// FillFor picks the fill tier of a block drawn in lane; qubic wins over orphan.
// The lane decides chain membership, not the record's own flag.
func FillFor(b core.BlockRecord, lane Lane) FillTier {
	switch {
	case b.IsQubic:
		return FillQubic
	case lane == LaneOrphan:
		return FillOrphan
	default:
		return FillMain
	}
}

func (p Palette) colorOf(t FillTier) string {
	switch t {
	case FillQubic:
		return p.Qubic
	case FillOrphan:
		return p.Orphan
	default:
		return p.Main
	}
}

// ShortLabel is "0x" plus the first 8 hex digits of hash
func ShortLabel(hash string) string {
	if hash == "" {
		return ""
	}
	h := hash
	if len(h) >= 2 && strings.EqualFold(h[:2], "0x") {
		h = h[2:]
	}
	if r := []rune(h); len(r) > labelLen {
		h = string(r[:labelLen])
	}
	return "0x" + h
}

// ExplorerLink appends the full hash to base; empty when hash is empty
func ExplorerLink(base, hash string) string {
	if hash == "" {
		return ""
	}
	return base + hash
}

// TooltipFor builds the hover payload of a block in lane
func TooltipFor(b core.BlockRecord, lane Lane) Tooltip {
	t := Tooltip{
		Lane:     lane.DisplayName(),
		Height:   b.Height,
		FullHash: b.Hash,
		Time:     b.TimestampString(),
	}
	if b.Hash != "" {
		t.Hash = truncate(b.Hash, tooltipHashLen)
	}
	return t
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}

func titleFor(run core.Run) Title {
	date := "-"
	var first *core.BlockRecord
	if len(run.OrphanBlocks) > 0 {
		first = &run.OrphanBlocks[0]
	}
	if (first == nil || !first.HasTimestamp()) && len(run.MainchainWindow) > 0 {
		first = &run.MainchainWindow[0]
	}
	if first != nil && first.HasTimestamp() {
		date = first.Timestamp.UTC().Format("2006-01-02")
	}
	return Title{
		Range:  fmt.Sprintf("%d~%d", run.StartHeight, run.EndHeight),
		Length: run.Length(),
		Date:   date,
	}
}

func byHeight(bs []core.BlockRecord) map[int64]core.BlockRecord {
	m := make(map[int64]core.BlockRecord, len(bs))
	for _, b := range bs {
		if _, ok := m[b.Height]; !ok {
			m[b.Height] = b
		}
	}
	return m
}

// CellAt returns the cell drawn for (lane, height)
func (l *Layout) CellAt(lane Lane, height int64) (*Cell, bool) {
	for i := range l.Cells {
		if l.Cells[i].Lane == lane && l.Cells[i].Height == height {
			return &l.Cells[i], true
		}
	}
	return nil, false
}

// HitTest returns the cell under (x, y)
func (l *Layout) HitTest(x, y float64) (*Cell, bool) {
	for i := range l.Cells {
		if l.Cells[i].Rect.Contains(x, y) {
			return &l.Cells[i], true
		}
	}
	return nil, false
}

// ColumnX returns the left edge of the column for height
func (l *Layout) ColumnX(height int64, geo Geometry) (float64, bool) {
	if height < l.MinHeight || height > l.MaxHeight {
		return 0, false
	}
	return geo.LeftPad + float64(height-l.MinHeight)*geo.ColumnWidth(), true
}

// All lays out every run with cfg
func All(runs []core.Run, cfg Config) []*Layout {
	out := make([]*Layout, 0, len(runs))
	for _, r := range runs {
		out = append(out, New(r, cfg))
	}
	return out
}
