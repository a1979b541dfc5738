// Package charts renders the portfolio as a sector treemap. Tile area
// is proportional to position value and tile color tracks unrealized
// gain, in the style of the classic market heatmap.
package charts

import (
	"fmt"
	"sort"

	"github.com/rs/zerolog"

	"folio/internal/format"
	"folio/internal/modules/portfolio"
)

// Canvas size limits. Requests outside this range are rejected.
const (
	MinDimension     = 100
	MaxDimension     = 4000
	DefaultWidth     = 1200
	DefaultHeight    = 800
	sectorHeaderSize = 18
)

// Label detail thresholds in pixels
const (
	labelMinWidth      = 50
	labelMinHeight     = 36
	labelFullMinHeight = 54
)

// SummarySource provides the portfolio snapshot the treemap is built
// from. Implemented by portfolio.PortfolioService.
type SummarySource interface {
	GetSummary() (*portfolio.Summary, error)
}

// Tile is one position rectangle in the treemap
type Tile struct {
	Symbol      string  `json:"symbol"`
	Label       string  `json:"label"`
	Rect        Rect    `json:"rect"`
	Value       float64 `json:"value"`
	GainPercent float64 `json:"gain_percent"`
	Color       string  `json:"color"`
}

// SectorGroup is a labelled cluster of position tiles
type SectorGroup struct {
	Sector string  `json:"sector"`
	Rect   Rect    `json:"rect"`
	Value  float64 `json:"value"`
	Tiles  []Tile  `json:"tiles"`
}

// Side is one half of the treemap, long or short
type Side struct {
	Label   string        `json:"label"`
	Rect    Rect          `json:"rect"`
	Value   float64       `json:"value"`
	Sectors []SectorGroup `json:"sectors"`
}

// Treemap is the full layout for one canvas size
type Treemap struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
	Sides  []Side  `json:"sides"`
}

// Service builds treemap layouts from portfolio snapshots
type Service struct {
	source SummarySource
	log    zerolog.Logger
}

// NewService creates a new charts service
func NewService(source SummarySource, log zerolog.Logger) *Service {
	return &Service{
		source: source,
		log:    log.With().Str("module", "charts").Logger(),
	}
}

// BuildTreemap lays out the current portfolio on a canvas of the given
// size. The canvas splits between long and short sides proportionally
// to their gross values, then each side squarifies its sectors and
// each sector its positions.
func (s *Service) BuildTreemap(width, height float64) (*Treemap, error) {
	if width < MinDimension || width > MaxDimension || height < MinDimension || height > MaxDimension {
		return nil, fmt.Errorf("dimensions must be between %d and %d pixels", MinDimension, MaxDimension)
	}

	summary, err := s.source.GetSummary()
	if err != nil {
		return nil, fmt.Errorf("failed to load portfolio: %w", err)
	}

	treemap := &Treemap{Width: width, Height: height}

	longValue := summary.Metadata.TotalLongValue
	shortValue := summary.Metadata.TotalShortValue
	total := longValue + shortValue
	if total <= 0 {
		return treemap, nil
	}

	canvas := Rect{W: width, H: height}

	if longValue > 0 && shortValue > 0 {
		// Side by side split, long on the left
		longWidth := width * longValue / total
		treemap.Sides = append(treemap.Sides,
			s.buildSide("Long", summary, "long", Rect{X: 0, Y: 0, W: longWidth, H: height}, longValue),
			s.buildSide("Short", summary, "short", Rect{X: longWidth, Y: 0, W: width - longWidth, H: height}, shortValue),
		)
	} else if longValue > 0 {
		treemap.Sides = append(treemap.Sides, s.buildSide("Long", summary, "long", canvas, longValue))
	} else {
		treemap.Sides = append(treemap.Sides, s.buildSide("Short", summary, "short", canvas, shortValue))
	}

	return treemap, nil
}

func (s *Service) buildSide(label string, summary *portfolio.Summary, posType string, bounds Rect, sideValue float64) Side {
	side := Side{Label: label, Rect: bounds, Value: sideValue}

	// Group this side's positions by sector
	bySector := make(map[string][]portfolio.PositionView)
	for _, pos := range summary.Positions {
		if pos.Type == posType {
			bySector[pos.Sector] = append(bySector[pos.Sector], pos)
		}
	}

	type sectorEntry struct {
		name  string
		value float64
	}
	sectors := make([]sectorEntry, 0, len(bySector))
	for name, positions := range bySector {
		var value float64
		for _, pos := range positions {
			value += pos.PositionValue
		}
		sectors = append(sectors, sectorEntry{name: name, value: value})
	}

	// Largest sector first, names break ties for a stable layout
	sort.Slice(sectors, func(i, j int) bool {
		if sectors[i].value != sectors[j].value {
			return sectors[i].value > sectors[j].value
		}
		return sectors[i].name < sectors[j].name
	})

	values := make([]float64, len(sectors))
	for i, sec := range sectors {
		values[i] = sec.value
	}

	rects := Squarify(values, bounds)
	for i, sec := range sectors {
		group := SectorGroup{
			Sector: sec.name,
			Rect:   rects[i],
			Value:  sec.value,
		}
		group.Tiles = s.buildTiles(bySector[sec.name], rects[i])
		side.Sectors = append(side.Sectors, group)
	}

	return side
}

func (s *Service) buildTiles(positions []portfolio.PositionView, bounds Rect) []Tile {
	sort.Slice(positions, func(i, j int) bool {
		if positions[i].PositionValue != positions[j].PositionValue {
			return positions[i].PositionValue > positions[j].PositionValue
		}
		return positions[i].Symbol < positions[j].Symbol
	})

	// Reserve space for the sector header when there is room
	inner := bounds
	if inner.H > sectorHeaderSize*2 {
		inner.Y += sectorHeaderSize
		inner.H -= sectorHeaderSize
	}

	values := make([]float64, len(positions))
	for i, pos := range positions {
		values[i] = pos.PositionValue
	}

	rects := Squarify(values, inner)
	tiles := make([]Tile, len(positions))
	for i, pos := range positions {
		tiles[i] = Tile{
			Symbol:      pos.Symbol,
			Label:       tileLabel(pos, rects[i]),
			Rect:        rects[i],
			Value:       pos.PositionValue,
			GainPercent: pos.UnrealizedGainPercent,
			Color:       ColorForChange(pos.UnrealizedGainPercent),
		}
	}

	return tiles
}

// tileLabel picks the amount of detail that fits the tile. Small tiles
// show only the symbol, tall ones add value and gain lines.
func tileLabel(pos portfolio.PositionView, r Rect) string {
	if r.W < labelMinWidth || r.H < labelMinHeight {
		return pos.Symbol
	}
	if r.H < labelFullMinHeight {
		return pos.Symbol + "\n" + format.Percent(pos.UnrealizedGainPercent)
	}
	return pos.Symbol + "\n" + format.MoneyCompact(pos.PositionValue) + "\n" + format.Percent(pos.UnrealizedGainPercent)
}
