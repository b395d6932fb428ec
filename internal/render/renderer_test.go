package render_test

import (
	"bytes"
	"image"
	_ "image/jpeg"
	_ "image/png"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/paulmach/orb"

	"github.com/maptoposter/poster-api/internal/geodata"
	"github.com/maptoposter/poster-api/internal/render"
	"github.com/maptoposter/poster-api/internal/themes"
)

var _ = Describe("poster renderer", func() {
	var (
		renderer *render.Renderer
		theme    *themes.Theme
		data     *geodata.MapData
		center   = orb.Point{2.3522, 48.8566}
	)

	BeforeEach(func() {
		var err error
		renderer, err = render.NewRenderer(render.WithSize(300, 400))
		Expect(err).To(BeNil())

		theme = &themes.Theme{
			ID:            "noir",
			Background:    "#000000",
			Text:          "#FFFFFF",
			GradientColor: "#000000",
			Water:         "#0000FF",
			Parks:         "#00FF00",
			RoadPrimary:   "#FF0000",
			RoadDefault:   "#808080",
		}

		ring := orb.Ring{{2.30, 48.80}, {2.31, 48.80}, {2.31, 48.81}, {2.30, 48.80}}
		data = &geodata.MapData{
			Graph: &geodata.Graph{Edges: []geodata.Edge{
				{Highway: geodata.HighwayPrimary, Line: orb.LineString{{2.3422, 48.8566}, {2.3622, 48.8566}}},
				{Highway: geodata.HighwayDefault, Line: orb.LineString{{2.3522, 48.8466}, {2.3522, 48.8666}}},
			}},
			Water:    &geodata.Features{Polygons: []orb.Polygon{{ring}}},
			Center:   center,
			Distance: 2000,
		}
	})

	It("draws a poster of the configured size", func() {
		img, err := renderer.Render(data, theme, render.Labels{City: "Paris", Country: "France", Center: center})
		Expect(err).To(BeNil())
		Expect(img.Bounds().Dx()).To(Equal(300))
		Expect(img.Bounds().Dy()).To(Equal(400))

		// the corner is background and the primary road crosses the center
		r, g, b, _ := img.At(1, 200).RGBA()
		Expect([]uint32{r, g, b}).To(Equal([]uint32{0, 0, 0}))
		var red uint32
		for y := 198; y <= 202; y++ {
			if r, _, _, _ := img.At(170, y).RGBA(); r > red {
				red = r
			}
		}
		Expect(red).To(BeNumerically(">", 0))
	})

	It("renders without water and parks", func() {
		data.Water = nil
		img, err := renderer.Render(data, theme, render.Labels{City: "Paris", Country: "France", Center: center})
		Expect(err).To(BeNil())
		Expect(img).NotTo(BeNil())
	})

	It("refuses data without a graph", func() {
		data.Graph = nil
		_, err := renderer.Render(data, theme, render.Labels{})
		Expect(err).To(MatchError(render.ErrNoGraph))
	})

	It("encodes png and a scaled jpeg preview", func() {
		img, err := renderer.Render(data, theme, render.Labels{City: "Paris", Country: "France", Center: center})
		Expect(err).To(BeNil())

		var poster bytes.Buffer
		Expect(render.EncodePNG(&poster, img)).To(Succeed())
		_, format, err := image.DecodeConfig(bytes.NewReader(poster.Bytes()))
		Expect(err).To(BeNil())
		Expect(format).To(Equal("png"))

		var preview bytes.Buffer
		Expect(render.Preview(bytes.NewReader(poster.Bytes()), &preview, 150)).To(Succeed())
		cfg, format, err := image.DecodeConfig(&preview)
		Expect(err).To(BeNil())
		Expect(format).To(Equal("jpeg"))
		Expect(cfg.Width).To(Equal(150))
		Expect(cfg.Height).To(Equal(200))
	})

	It("does not upscale previews", func() {
		img, err := renderer.Render(data, theme, render.Labels{City: "Paris", Country: "France", Center: center})
		Expect(err).To(BeNil())

		var poster, preview bytes.Buffer
		Expect(render.EncodePNG(&poster, img)).To(Succeed())
		Expect(render.Preview(&poster, &preview, 1000)).To(Succeed())

		cfg, _, err := image.DecodeConfig(&preview)
		Expect(err).To(BeNil())
		Expect(cfg.Width).To(Equal(300))
	})

	It("fails to preview garbage", func() {
		var preview bytes.Buffer
		Expect(render.Preview(bytes.NewReader([]byte("not an image")), &preview, 100)).NotTo(Succeed())
	})
})
