package themes

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"go.uber.org/zap"
)

const (
	defaultBackground = "#FFFFFF"
	defaultText       = "#000000"
)

var (
	ErrThemeNotFound = errors.New("theme not found")

	idPattern = regexp.MustCompile(`^[a-z0-9_-]+$`)
)

// Theme is the full color palette of a poster.
type Theme struct {
	ID              string  `json:"id"`
	Name            string  `json:"name"`
	Description     *string `json:"description,omitempty"`
	Background      string  `json:"bg"`
	Text            string  `json:"text"`
	GradientColor   string  `json:"gradient_color"`
	Water           string  `json:"water"`
	Parks           string  `json:"parks"`
	RoadMotorway    string  `json:"road_motorway"`
	RoadPrimary     string  `json:"road_primary"`
	RoadSecondary   string  `json:"road_secondary"`
	RoadTertiary    string  `json:"road_tertiary"`
	RoadResidential string  `json:"road_residential"`
	RoadDefault     string  `json:"road_default"`
}

// ThemeInfo is the summary returned by the themes listing.
type ThemeInfo struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Description *string `json:"description"`
	Background  string  `json:"bg"`
	Text        string  `json:"text"`
}

func (t Theme) Info() ThemeInfo {
	return ThemeInfo{
		ID:          t.ID,
		Name:        t.Name,
		Description: t.Description,
		Background:  t.Background,
		Text:        t.Text,
	}
}

// RoadColor returns the color of a highway class, falling back to the default road color.
func (t Theme) RoadColor(class string) string {
	var c string
	switch class {
	case "motorway":
		c = t.RoadMotorway
	case "primary":
		c = t.RoadPrimary
	case "secondary":
		c = t.RoadSecondary
	case "tertiary":
		c = t.RoadTertiary
	case "residential":
		c = t.RoadResidential
	}
	if c == "" {
		c = t.RoadDefault
	}
	if c == "" {
		c = t.Text
	}
	return c
}

// fillDefaults completes a theme read from disk. Missing colors are derived from the text and
// background colors so partial theme files still render.
func (t *Theme) fillDefaults(id string) {
	t.ID = id
	if t.Name == "" {
		t.Name = id
	}
	if t.Background == "" {
		t.Background = defaultBackground
	}
	if t.Text == "" {
		t.Text = defaultText
	}
	if t.GradientColor == "" {
		t.GradientColor = t.Background
	}
	if t.Water == "" {
		t.Water = t.Text
	}
	if t.Parks == "" {
		t.Parks = t.Background
	}
	if t.RoadDefault == "" {
		t.RoadDefault = t.Text
	}
}

// ValidID reports whether id can name a theme file.
func ValidID(id string) bool {
	return idPattern.MatchString(id)
}

// Catalog reads themes from a directory of json files. Files are read on every call so themes
// can be added without a restart; a file which fails to parse is skipped.
type Catalog struct {
	dir string
}

func NewCatalog(dir string) *Catalog {
	return &Catalog{dir: dir}
}

func (c *Catalog) Dir() string {
	return c.dir
}

// List returns every theme sorted by file name.
func (c *Catalog) List() ([]ThemeInfo, error) {
	files, err := filepath.Glob(filepath.Join(c.dir, "*.json"))
	if err != nil {
		return nil, err
	}
	sort.Strings(files)

	infos := make([]ThemeInfo, 0, len(files))
	for _, f := range files {
		id := strings.TrimSuffix(filepath.Base(f), ".json")
		t, err := c.read(id)
		if err != nil {
			zap.S().Named("themes").Warnw("skipping theme", "file", f, "error", err)
			continue
		}
		infos = append(infos, t.Info())
	}
	return infos, nil
}

// Get returns the theme with the given id or ErrThemeNotFound.
func (c *Catalog) Get(id string) (*Theme, error) {
	if !ValidID(id) {
		return nil, fmt.Errorf("%w: %q", ErrThemeNotFound, id)
	}

	return c.read(id)
}

// Exists reports whether a readable theme named id exists.
func (c *Catalog) Exists(id string) bool {
	_, err := c.Get(id)
	return err == nil
}

func (c *Catalog) read(id string) (*Theme, error) {
	data, err := os.ReadFile(filepath.Join(c.dir, id+".json"))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %q", ErrThemeNotFound, id)
		}
		return nil, err
	}

	var t Theme
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("parsing theme %q: %w", id, err)
	}
	t.fillDefaults(id)

	return &t, nil
}
