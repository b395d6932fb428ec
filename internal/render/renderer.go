package render

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"io"
	"math"
	"strings"
	"unicode/utf8"

	"github.com/disintegration/imaging"
	"github.com/fogleman/gg"
	"github.com/paulmach/orb"

	"github.com/maptoposter/poster-api/internal/geodata"
	"github.com/maptoposter/poster-api/internal/themes"
)

const (
	DefaultWidth  = 1200
	DefaultHeight = 1600

	// presentation sizes are tuned for the default width and scale with the canvas
	baseWidth   = 1200.0
	fadeShare   = 0.25
	attribution = "© OpenStreetMap contributors"
)

var ErrNoGraph = errors.New("map data has no street graph")

// road classes in drawing order, minor roads first
var roadOrder = []string{
	geodata.HighwayDefault,
	geodata.HighwayResidential,
	geodata.HighwayTertiary,
	geodata.HighwaySecondary,
	geodata.HighwayPrimary,
	geodata.HighwayMotorway,
}

var roadWidths = map[string]float64{
	geodata.HighwayMotorway:    2.4,
	geodata.HighwayPrimary:     2.0,
	geodata.HighwaySecondary:   1.6,
	geodata.HighwayTertiary:    1.2,
	geodata.HighwayResidential: 0.8,
	geodata.HighwayDefault:     0.8,
}

// Labels are the texts printed at the bottom of the poster.
type Labels struct {
	City    string
	Country string
	Center  orb.Point
}

type Renderer struct {
	width  int
	height int
	fonts  *fonts
}

type RendererOpts func(r *Renderer)

func WithSize(width, height int) RendererOpts {
	return func(r *Renderer) {
		if width > 0 && height > 0 {
			r.width = width
			r.height = height
		}
	}
}

func NewRenderer(opts ...RendererOpts) (*Renderer, error) {
	f, err := loadFonts()
	if err != nil {
		return nil, fmt.Errorf("loading fonts: %w", err)
	}

	r := &Renderer{width: DefaultWidth, height: DefaultHeight, fonts: f}
	for _, o := range opts {
		o(r)
	}
	return r, nil
}

func (r *Renderer) Size() (int, int) {
	return r.width, r.height
}

// Render draws the poster for data styled by theme.
func (r *Renderer) Render(data *geodata.MapData, theme *themes.Theme, labels Labels) (image.Image, error) {
	if data == nil || data.Graph == nil {
		return nil, ErrNoGraph
	}
	if theme == nil {
		return nil, errors.New("no theme")
	}

	dc := gg.NewContext(r.width, r.height)
	proj := newProjection(data.Center, data.Distance, r.width, r.height)
	scale := float64(r.width) / baseWidth

	dc.SetColor(mustHex(theme.Background, color.NRGBA{R: 255, G: 255, B: 255, A: 255}))
	dc.Clear()

	r.drawFeatures(dc, proj, data.Water, mustHex(theme.Water, color.NRGBA{A: 255}))
	r.drawFeatures(dc, proj, data.Parks, mustHex(theme.Parks, color.NRGBA{A: 255}))
	r.drawRoads(dc, proj, data.Graph, theme, scale)

	gradient := mustHex(theme.GradientColor, mustHex(theme.Background, color.NRGBA{R: 255, G: 255, B: 255, A: 255}))
	r.drawFade(dc, gradient, true)
	r.drawFade(dc, gradient, false)

	r.drawLabels(dc, theme, labels, scale)

	return dc.Image(), nil
}

func (r *Renderer) drawFeatures(dc *gg.Context, proj projection, f *geodata.Features, c color.NRGBA) {
	if f.Empty() {
		return
	}

	dc.SetFillRuleEvenOdd()
	dc.SetColor(c)
	for _, polygon := range f.Polygons {
		if !proj.visible(polygon.Bound()) {
			continue
		}
		for _, ring := range polygon {
			for i, pt := range ring {
				x, y := proj.point(pt)
				if i == 0 {
					dc.MoveTo(x, y)
					continue
				}
				dc.LineTo(x, y)
			}
			dc.ClosePath()
		}
		dc.Fill()
	}
}

func (r *Renderer) drawRoads(dc *gg.Context, proj projection, g *geodata.Graph, theme *themes.Theme, scale float64) {
	byClass := make(map[string][]orb.LineString, len(roadOrder))
	for _, e := range g.Edges {
		byClass[e.Highway] = append(byClass[e.Highway], e.Line)
	}

	dc.SetLineCapRound()
	dc.SetLineJoinRound()
	for _, class := range roadOrder {
		lines := byClass[class]
		if len(lines) == 0 {
			continue
		}

		dc.SetColor(mustHex(theme.RoadColor(class), color.NRGBA{A: 255}))
		dc.SetLineWidth(math.Max(roadWidths[class]*scale, 0.5))
		for _, line := range lines {
			if len(line) < 2 || !proj.visible(line.Bound()) {
				continue
			}
			for i, pt := range line {
				x, y := proj.point(pt)
				if i == 0 {
					dc.MoveTo(x, y)
					continue
				}
				dc.LineTo(x, y)
			}
			dc.Stroke()
		}
	}
}

// drawFade blends the map into the gradient color at the top or the bottom of the poster.
func (r *Renderer) drawFade(dc *gg.Context, c color.NRGBA, top bool) {
	h := float64(r.height) * fadeShare
	w := float64(r.width)

	opaque, transparent := c, c
	transparent.A = 0

	var y0, y1 float64
	if top {
		y0, y1 = 0, h
	} else {
		y0, y1 = float64(r.height), float64(r.height)-h
	}

	grad := gg.NewLinearGradient(0, y0, 0, y1)
	grad.AddColorStop(0, opaque)
	grad.AddColorStop(1, transparent)

	dc.SetFillStyle(grad)
	dc.DrawRectangle(0, math.Min(y0, y1), w, h)
	dc.Fill()
}

func (r *Renderer) drawLabels(dc *gg.Context, theme *themes.Theme, labels Labels, scale float64) {
	w, h := float64(r.width), float64(r.height)
	textColor := mustHex(theme.Text, color.NRGBA{A: 255})
	dc.SetColor(textColor)

	city := SpacedName(labels.City)
	citySize := 72 * scale
	if n := utf8.RuneCountInString(labels.City); n > 10 {
		citySize = math.Max(citySize*10/float64(n), 24*scale)
	}
	dc.SetFontFace(face(r.fonts.bold, citySize))
	dc.DrawStringAnchored(city, w/2, h*0.86, 0.5, 0.5)

	dc.SetLineWidth(math.Max(1.5*scale, 1))
	dc.DrawLine(w*0.4, h*0.885, w*0.6, h*0.885)
	dc.Stroke()

	dc.SetFontFace(face(r.fonts.regular, 26*scale))
	dc.DrawStringAnchored(strings.ToUpper(labels.Country), w/2, h*0.91, 0.5, 0.5)

	dc.SetFontFace(face(r.fonts.mono, 16*scale))
	dc.DrawStringAnchored(FormatCoords(labels.Center), w/2, h*0.94, 0.5, 0.5)

	faded := textColor
	faded.A = 128
	dc.SetColor(faded)
	dc.SetFontFace(face(r.fonts.regular, 9*scale))
	dc.DrawStringAnchored(attribution, w*0.98, h*0.985, 1, 0.5)
}

// SpacedName uppercases a city name and spreads its letters, "Paris" becomes "P  A  R  I  S".
func SpacedName(city string) string {
	city = strings.ToUpper(strings.TrimSpace(city))
	letters := make([]string, 0, len(city))
	for _, r := range city {
		if r == ' ' {
			letters = append(letters, " ")
			continue
		}
		letters = append(letters, string(r))
	}
	return strings.Join(letters, "  ")
}

// FormatCoords prints a point as "48.8566° N / 2.3522° E".
func FormatCoords(p orb.Point) string {
	ns, ew := "N", "E"
	lat, lon := p.Lat(), p.Lon()
	if lat < 0 {
		ns = "S"
	}
	if lon < 0 {
		ew = "W"
	}
	return fmt.Sprintf("%.4f° %s / %.4f° %s", math.Abs(lat), ns, math.Abs(lon), ew)
}

func EncodePNG(w io.Writer, img image.Image) error {
	return imaging.Encode(w, img, imaging.PNG)
}

// Preview decodes an image and writes a JPEG scaled down to maxWidth. Smaller images keep
// their size.
func Preview(r io.Reader, w io.Writer, maxWidth int) error {
	img, err := imaging.Decode(r)
	if err != nil {
		return fmt.Errorf("decoding poster: %w", err)
	}

	if maxWidth > 0 && img.Bounds().Dx() > maxWidth {
		img = imaging.Resize(img, maxWidth, 0, imaging.Lanczos)
	}
	return imaging.Encode(w, img, imaging.JPEG, imaging.JPEGQuality(85))
}
