package config

import (
	"fmt"
	"os"
	"sort"

	"github.com/gigapi/gigaview/model"
	"gopkg.in/yaml.v3"
)

// Catalog maps dataset names to their sources.
type Catalog struct {
	Datasets map[string]model.DataSource `yaml:"datasets"`
}

// LoadCatalog reads the dataset catalog from a YAML file
func LoadCatalog(filename string) (*Catalog, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	return ParseCatalog(data)
}

func ParseCatalog(data []byte) (*Catalog, error) {
	var catalog Catalog
	if err := yaml.Unmarshal(data, &catalog); err != nil {
		return nil, err
	}
	if catalog.Datasets == nil {
		catalog.Datasets = map[string]model.DataSource{}
	}
	for name, src := range catalog.Datasets {
		if src.SourceType == "" {
			src.SourceType = model.SourceLocal
			catalog.Datasets[name] = src
		}
		if err := src.Validate(); err != nil {
			return nil, fmt.Errorf("dataset %s: %w", name, err)
		}
	}
	return &catalog, nil
}

// Lookup returns the source registered under name.
func (c *Catalog) Lookup(name string) (*model.DataSource, bool) {
	if c == nil {
		return nil, false
	}
	src, ok := c.Datasets[name]
	if !ok {
		return nil, false
	}
	return &src, true
}

func (c *Catalog) Names() []string {
	if c == nil {
		return nil
	}
	names := make([]string, 0, len(c.Datasets))
	for name := range c.Datasets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
