// Package sunpath resolves named reference paths (day path, month path,
// solstices, equinox) into sun position series for chart overlays.
package sunpath

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"heliodon/internal/models"
	"heliodon/shared/sunpos"
)

// ErrUnknownTag is returned when a path name does not match any Tag
var ErrUnknownTag = errors.New("unknown reference path")

// Tag identifies a reference path
type Tag int

const (
	DayPath Tag = iota
	MonthPath
	SummerSolstice
	WinterSolstice
	Equinox
)

// Tags lists every reference path in display order
var Tags = []Tag{DayPath, MonthPath, SummerSolstice, WinterSolstice, Equinox}

// String returns the wire name of the tag
func (t Tag) String() string {
	switch t {
	case DayPath:
		return "sp_day"
	case MonthPath:
		return "sp_month"
	case SummerSolstice:
		return "sol_summer"
	case WinterSolstice:
		return "sol_winter"
	case Equinox:
		return "equinox"
	default:
		return fmt.Sprintf("Tag(%d)", int(t))
	}
}

// Label returns a human readable name for forms and legends
func (t Tag) Label() string {
	switch t {
	case DayPath:
		return "Sun path (day)"
	case MonthPath:
		return "Sun path (month)"
	case SummerSolstice:
		return "Summer solstice"
	case WinterSolstice:
		return "Winter solstice"
	case Equinox:
		return "Equinox"
	default:
		return t.String()
	}
}

// Style returns how the tag's curve is drawn
func (t Tag) Style() Style {
	switch t {
	case SummerSolstice:
		return Style{Color: "red", Dash: DashDashed}
	case WinterSolstice:
		return Style{Color: "blue", Dash: DashDashed}
	case Equinox:
		return Style{Color: "green", Dash: DashDotted}
	default:
		return Style{Color: "orange", Dash: DashSolid}
	}
}

func (t Tag) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *Tag) UnmarshalText(b []byte) error {
	parsed, err := ParseTag(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// ParseTag maps a wire name to its Tag
func ParseTag(s string) (Tag, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for _, t := range Tags {
		if t.String() == name {
			return t, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownTag, s)
}

// ParseTags parses a list of wire names, keeping their order
func ParseTags(names []string) ([]Tag, error) {
	tags := make([]Tag, 0, len(names))
	for _, n := range names {
		if strings.TrimSpace(n) == "" {
			continue
		}
		t, err := ParseTag(n)
		if err != nil {
			return nil, err
		}
		tags = append(tags, t)
	}
	return tags, nil
}

// Dash is a line pattern
type Dash string

const (
	DashSolid  Dash = "solid"
	DashDashed Dash = "dash"
	DashDotted Dash = "dot"
)

// Style describes how an overlay is drawn
type Style struct {
	Color string `json:"color"`
	Dash  Dash   `json:"dash"`
}

// Request is the base location and local time the paths are resolved for
type Request struct {
	Location  models.GeoLocation
	Year      int
	Month     time.Month
	Day       int
	Hour      int
	UTCOffset int
}

// Overlay is a resolved reference path, already limited to positions above
// the horizon
type Overlay struct {
	Tag    Tag                      `json:"tag"`
	Label  string                   `json:"label"`
	Style  Style                    `json:"style"`
	Series models.SunPositionSeries `json:"series"`
}

// Selector resolves tags against a series generator
type Selector struct {
	generator *sunpos.Generator
}

func NewSelector(generator *sunpos.Generator) *Selector {
	return &Selector{generator: generator}
}

// Resolve returns one overlay per tag, in the order given. A path with no
// positions above the horizon (polar night) contributes no overlay.
func (s *Selector) Resolve(req Request, tags ...Tag) ([]Overlay, error) {
	overlays := make([]Overlay, 0, len(tags))
	for _, tag := range tags {
		series, err := s.series(req, tag)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve %s: %w", tag, err)
		}

		visible := series.AboveHorizon()
		if len(visible) == 0 {
			continue
		}
		overlays = append(overlays, Overlay{
			Tag:    tag,
			Label:  tag.Label(),
			Style:  tag.Style(),
			Series: visible,
		})
	}
	return overlays, nil
}

func (s *Selector) series(req Request, tag Tag) (models.SunPositionSeries, error) {
	switch tag {
	case DayPath:
		return s.day(req, req.Month, req.Day)
	case MonthPath:
		return s.generator.YearMonthSlicePositions(req.Location, req.Year, req.Day, req.Hour, req.UTCOffset)
	case SummerSolstice:
		month, day := SolsticeDate(SummerSolstice, req.Location)
		return s.day(req, month, day)
	case WinterSolstice:
		month, day := SolsticeDate(WinterSolstice, req.Location)
		return s.day(req, month, day)
	case Equinox:
		// Only the March equinox is drawn; the September path is nearly identical
		return s.day(req, time.March, 20)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownTag, tag)
	}
}

func (s *Selector) day(req Request, month time.Month, day int) (models.SunPositionSeries, error) {
	return s.generator.DayPositions(req.Location, req.Year, month, day, req.UTCOffset)
}

// SolsticeDate returns the reference date of a solstice at a location.
// The seasons swap south of the equator; the equator itself follows the
// southern calendar.
func SolsticeDate(tag Tag, loc models.GeoLocation) (time.Month, int) {
	north := loc.Latitude > 0
	if (tag == SummerSolstice) == north {
		return time.June, 21
	}
	return time.December, 21
}
