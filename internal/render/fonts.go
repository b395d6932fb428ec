package render

import (
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/gomono"
	"golang.org/x/image/font/gofont/goregular"
)

type fonts struct {
	bold    *truetype.Font
	regular *truetype.Font
	mono    *truetype.Font
}

func loadFonts() (*fonts, error) {
	bold, err := truetype.Parse(gobold.TTF)
	if err != nil {
		return nil, err
	}
	regular, err := truetype.Parse(goregular.TTF)
	if err != nil {
		return nil, err
	}
	mono, err := truetype.Parse(gomono.TTF)
	if err != nil {
		return nil, err
	}
	return &fonts{bold: bold, regular: regular, mono: mono}, nil
}

func face(f *truetype.Font, size float64) font.Face {
	return truetype.NewFace(f, &truetype.Options{Size: size, DPI: 72, Hinting: font.HintingFull})
}
