// Package chart draws sun positions on a polar sky chart: the zenith sits
// at the centre, the horizon on the rim, and azimuth runs clockwise from
// north at the top.
package chart

import (
	"bytes"
	"fmt"
	"html/template"
	"io"
	"math"
	"strings"

	"heliodon/internal/models"
	"heliodon/shared/sunpath"
)

// Point is a position in SVG user units
type Point struct {
	X float64
	Y float64
}

// Projection maps altitude/azimuth pairs onto a disc of the given radius
// centred at (Radius+Margin, Radius+Margin).
type Projection struct {
	Radius float64
	Margin float64
}

func DefaultProjection() Projection {
	return Projection{Radius: 200, Margin: 30}
}

// Size returns the width (and height) of the drawing
func (p Projection) Size() float64 {
	return 2 * (p.Radius + p.Margin)
}

func (p Projection) center() float64 {
	return p.Radius + p.Margin
}

// Project maps a sun position onto the chart. The radial distance is
// 90 - altitude, so positions below the horizon fall outside the rim.
func (p Projection) Project(altitude, azimuth float64) Point {
	r := (90 - altitude) / 90 * p.Radius
	theta := azimuth * math.Pi / 180
	c := p.center()
	return Point{
		X: c + r*math.Sin(theta),
		Y: c - r*math.Cos(theta),
	}
}

// Chart is everything drawn in one sky map
type Chart struct {
	Title    string
	Sun      *models.SunPosition
	Overlays []sunpath.Overlay
}

type ringView struct {
	R     float64
	Label string
	LX    float64
	LY    float64
}

type spokeView struct {
	X2, Y2 float64
	Label  string
	LX, LY float64
}

type pathView struct {
	Label     string
	Color     string
	DashArray string
	Points    string
	Dots      []Point
}

type legendView struct {
	Y         float64
	Label     string
	Color     string
	DashArray string
}

type chartView struct {
	Title    string
	Size     float64
	Center   float64
	Radius   float64
	Rings    []ringView
	Spokes   []spokeView
	Paths    []pathView
	Legend   []legendView
	Sun      *Point
	SunLabel string
}

var svgTemplate = template.Must(template.New("chart").Parse(`<svg xmlns="http://www.w3.org/2000/svg" width="{{.Size}}" height="{{.Size}}" viewBox="0 0 {{.Size}} {{.Size}}" font-family="sans-serif" font-size="11">
  <title>{{.Title}}</title>
  <circle cx="{{.Center}}" cy="{{.Center}}" r="{{.Radius}}" fill="#fbfbf8" stroke="#888"/>
  {{- range .Rings}}
  <circle cx="{{$.Center}}" cy="{{$.Center}}" r="{{.R}}" fill="none" stroke="#ddd"/>
  <text x="{{.LX}}" y="{{.LY}}" fill="#999">{{.Label}}</text>
  {{- end}}
  {{- range .Spokes}}
  <line x1="{{$.Center}}" y1="{{$.Center}}" x2="{{.X2}}" y2="{{.Y2}}" stroke="#eee"/>
  <text x="{{.LX}}" y="{{.LY}}" text-anchor="middle" dominant-baseline="middle" fill="#555">{{.Label}}</text>
  {{- end}}
  {{- range $path := .Paths}}
  <g class="path">
    <title>{{$path.Label}}</title>
    {{- if $path.Points}}
    <polyline points="{{$path.Points}}" fill="none" stroke="{{$path.Color}}" stroke-width="2"{{if $path.DashArray}} stroke-dasharray="{{$path.DashArray}}"{{end}}/>
    {{- end}}
    {{- range $path.Dots}}
    <circle cx="{{.X}}" cy="{{.Y}}" r="2.5" fill="{{$path.Color}}"/>
    {{- end}}
  </g>
  {{- end}}
  {{- range .Legend}}
  <line x1="8" y1="{{.Y}}" x2="30" y2="{{.Y}}" stroke="{{.Color}}" stroke-width="2"{{if .DashArray}} stroke-dasharray="{{.DashArray}}"{{end}}/>
  <text x="34" y="{{.Y}}" dominant-baseline="middle" fill="#333">{{.Label}}</text>
  {{- end}}
  {{- if .Sun}}
  <circle cx="{{.Sun.X}}" cy="{{.Sun.Y}}" r="7" fill="orange" stroke="#c60">
    <title>{{.SunLabel}}</title>
  </circle>
  {{- end}}
</svg>
`))

// RenderSVG writes the chart as a standalone SVG document. Overlays with no
// points and a missing sun are drawn as nothing.
func (p Projection) RenderSVG(w io.Writer, c Chart) error {
	view := p.view(c)
	if err := svgTemplate.Execute(w, view); err != nil {
		return fmt.Errorf("failed to render chart: %w", err)
	}
	return nil
}

// SVG renders the chart into a string for embedding in an HTML page
func (p Projection) SVG(c Chart) (template.HTML, error) {
	var buf bytes.Buffer
	if err := p.RenderSVG(&buf, c); err != nil {
		return "", err
	}
	return template.HTML(buf.String()), nil
}

func (p Projection) view(c Chart) chartView {
	center := p.center()
	v := chartView{
		Title:  c.Title,
		Size:   p.Size(),
		Center: center,
		Radius: p.Radius,
	}

	for _, alt := range []float64{30, 60} {
		pt := p.Project(alt, 0)
		v.Rings = append(v.Rings, ringView{
			R:     center - pt.Y,
			Label: fmt.Sprintf("%.0f°", alt),
			LX:    pt.X + 3,
			LY:    pt.Y - 3,
		})
	}

	compass := map[int]string{0: "N", 90: "E", 180: "S", 270: "W"}
	for az := 0; az < 360; az += 30 {
		rim := p.Project(0, float64(az))
		label := p.Project(-12, float64(az))
		name, ok := compass[az]
		if !ok {
			name = fmt.Sprintf("%d°", az)
		}
		v.Spokes = append(v.Spokes, spokeView{X2: rim.X, Y2: rim.Y, Label: name, LX: label.X, LY: label.Y})
	}

	legendY := 12.0
	for _, o := range c.Overlays {
		if len(o.Series) == 0 {
			continue
		}
		pv := pathView{
			Label:     o.Label,
			Color:     o.Style.Color,
			DashArray: dashArray(o.Style.Dash),
		}
		coords := make([]string, 0, len(o.Series))
		for _, pos := range o.Series {
			pt := p.Project(pos.Altitude, pos.Azimuth)
			coords = append(coords, fmt.Sprintf("%.2f,%.2f", pt.X, pt.Y))
			pv.Dots = append(pv.Dots, pt)
		}
		if len(coords) > 1 {
			pv.Points = strings.Join(coords, " ")
		}
		v.Paths = append(v.Paths, pv)
		v.Legend = append(v.Legend, legendView{Y: legendY, Label: o.Label, Color: pv.Color, DashArray: pv.DashArray})
		legendY += 14
	}

	if c.Sun != nil {
		pt := p.Project(c.Sun.Altitude, c.Sun.Azimuth)
		v.Sun = &pt
		v.SunLabel = fmt.Sprintf("altitude %.2f°, azimuth %.2f°", c.Sun.Altitude, c.Sun.Azimuth)
	}

	return v
}

func dashArray(d sunpath.Dash) string {
	switch d {
	case sunpath.DashDashed:
		return "8 5"
	case sunpath.DashDotted:
		return "2 4"
	default:
		return ""
	}
}
