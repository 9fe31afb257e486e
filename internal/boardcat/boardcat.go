package boardcat

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	yaml "gopkg.in/yaml.v3"
)

//go:embed boards.yaml
var defaultFiles embed.FS

// SnakesBoard is the static topology of a Snakes & Ladders board.
type SnakesBoard struct {
	FinalSquare int         `yaml:"final_square"`
	Snakes      map[int]int `yaml:"snakes"`
	Ladders     map[int]int `yaml:"ladders"`
}

// LudoParams holds the tunables of the single-round Ludo duel.
type LudoParams struct {
	DieFaces int `yaml:"die_faces"`
}

// Catalog holds the board definitions loaded from the embedded defaults and an
// optional override file.
type Catalog struct {
	Snakes SnakesBoard `yaml:"snakes_and_ladders"`
	Ludo   LudoParams  `yaml:"ludo"`
}

// Load reads the embedded board catalog and, when overridePath is set, replaces
// it wholesale with the file's contents. Bad topology fails loudly here rather
// than mid-session.
func Load(overridePath string) (*Catalog, error) {
	raw, err := fs.ReadFile(defaultFiles, "boards.yaml")
	if err != nil {
		return nil, fmt.Errorf("read embedded boards: %w", err)
	}
	if strings.TrimSpace(overridePath) != "" {
		raw, err = os.ReadFile(filepath.Clean(overridePath))
		if err != nil {
			return nil, fmt.Errorf("read board override: %w", err)
		}
	}
	var cat Catalog
	if err := yaml.Unmarshal(raw, &cat); err != nil {
		return nil, fmt.Errorf("parse boards: %w", err)
	}
	if err := cat.validate(); err != nil {
		return nil, err
	}
	return &cat, nil
}

func (c *Catalog) validate() error {
	b := c.Snakes
	if b.FinalSquare < 10 {
		return fmt.Errorf("snakes_and_ladders.final_square too small: %d", b.FinalSquare)
	}
	for head, tail := range b.Snakes {
		if head <= tail {
			return fmt.Errorf("snake at %d must slide down, tail %d", head, tail)
		}
		if head >= b.FinalSquare || tail < 1 {
			return fmt.Errorf("snake %d->%d outside board", head, tail)
		}
	}
	for foot, top := range b.Ladders {
		if top <= foot {
			return fmt.Errorf("ladder at %d must climb up, top %d", foot, top)
		}
		if foot < 1 || top > b.FinalSquare {
			return fmt.Errorf("ladder %d->%d outside board", foot, top)
		}
		if _, clash := b.Snakes[foot]; clash {
			return fmt.Errorf("square %d is both snake head and ladder foot", foot)
		}
	}
	if c.Ludo.DieFaces < 2 {
		return fmt.Errorf("ludo.die_faces too small: %d", c.Ludo.DieFaces)
	}
	return nil
}

// Resolve applies the snake/ladder jump for a landing square, if any.
func (b SnakesBoard) Resolve(square int) int {
	if tail, ok := b.Snakes[square]; ok {
		return tail
	}
	if top, ok := b.Ladders[square]; ok {
		return top
	}
	return square
}
