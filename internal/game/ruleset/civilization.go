// Package ruleset loads the YAML content files that constrain player
// configuration: the playable civilizations and the team layout.
package ruleset

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Civilization defines one playable civilization.
//
// Precondition: ID and Name must be non-empty after loading.
type Civilization struct {
	ID          string `yaml:"id"`
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
}

// LoadCivilizations reads all .yaml files in dir and parses each as a
// Civilization.
//
// Precondition: dir must be a readable directory path.
// Postcondition: Returns all parsed civilizations (may be an empty slice)
// or a non-nil error.
func LoadCivilizations(dir string) ([]*Civilization, error) {
	files, err := yamlFiles(dir)
	if err != nil {
		return nil, err
	}
	civs := make([]*Civilization, 0, len(files))
	for _, path := range files {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}
		var civ Civilization
		if err := yaml.Unmarshal(data, &civ); err != nil {
			return nil, fmt.Errorf("parsing civilization file %s: %w", path, err)
		}
		if civ.ID == "" || civ.Name == "" {
			return nil, fmt.Errorf("civilization file %s: id and name must be non-empty", path)
		}
		civs = append(civs, &civ)
	}
	return civs, nil
}

func yamlFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading directory %s: %w", dir, err)
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasSuffix(name, ".yaml") || strings.HasSuffix(name, ".yml") {
			paths = append(paths, filepath.Join(dir, name))
		}
	}
	return paths, nil
}
