package puzzles

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Puzzle is one entry of a puzzles file.
type Puzzle struct {
	ID          string `yaml:"id"`
	Type        string `yaml:"type"`
	Difficulty  string `yaml:"difficulty"`
	Multiplayer bool   `yaml:"multiplayer"`
}

type puzzleFile struct {
	Puzzles []Puzzle `yaml:"puzzles"`
}

// ReadFile returns every entry of a puzzles file, multiplayer or not.
func ReadFile(path string) ([]Puzzle, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read puzzle file %s: %w", path, err)
	}
	return parseEntries(data)
}

// LoadYAML reads a puzzles file and keeps the entries flagged multiplayer.
func LoadYAML(path string) (*Set, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read puzzle file %s: %w", path, err)
	}
	return ParseYAML(data)
}

func ParseYAML(data []byte) (*Set, error) {
	entries, err := parseEntries(data)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(entries))
	for _, p := range entries {
		if p.Multiplayer {
			ids = append(ids, p.ID)
		}
	}
	s := NewSet(ids...)
	if s.Len() == 0 {
		return nil, ErrEmptyCatalogue
	}
	return s, nil
}

func parseEntries(data []byte) ([]Puzzle, error) {
	var f puzzleFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse puzzle file: %w", err)
	}
	out := f.Puzzles[:0]
	for _, p := range f.Puzzles {
		if p.ID != "" {
			out = append(out, p)
		}
	}
	return out, nil
}
