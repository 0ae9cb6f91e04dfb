// Package config loads problem instances and search settings from YAML or
// CSV files, .env files, PDP_* environment variables and command-line flags.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"pdproute/internal/model"
)

// Source yields one problem instance.
type Source interface {
	Name() string
	Load() (model.ProblemIn, error)
}

// YAMLFile reads a full instance. JSON files parse too, being valid YAML.
type YAMLFile struct{ Path string }

func (f YAMLFile) Name() string { return "yaml:" + f.Path }

func (f YAMLFile) Load() (model.ProblemIn, error) {
	var in model.ProblemIn
	b, err := os.ReadFile(f.Path)
	if err != nil {
		return in, fmt.Errorf("config: read %q: %w", f.Path, err)
	}
	if err := yaml.Unmarshal(b, &in); err != nil {
		return in, fmt.Errorf("config: parse %q: %w", f.Path, err)
	}
	if in.Name == "" {
		in.Name = baseName(f.Path)
	}
	return in, nil
}

// CSVFile reads only the location table; fleet and search settings come from Base.
type CSVFile struct {
	Path string
	Base model.ProblemIn
}

func (f CSVFile) Name() string { return "csv:" + f.Path }

func (f CSVFile) Load() (model.ProblemIn, error) {
	in := f.Base
	fh, err := os.Open(f.Path)
	if err != nil {
		return in, fmt.Errorf("config: open %q: %w", f.Path, err)
	}
	defer fh.Close()
	locs, err := ReadLocationsCSV(fh)
	if err != nil {
		return in, fmt.Errorf("config: %q: %w", f.Path, err)
	}
	in.Locations = locs
	if in.Name == "" {
		in.Name = baseName(f.Path)
	}
	return in, nil
}

// Open picks a Source by file extension.
func Open(path string) (Source, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml", ".json":
		return YAMLFile{Path: path}, nil
	case ".csv":
		return CSVFile{Path: path}, nil
	default:
		return nil, fmt.Errorf("config: unsupported instance file %q (want .yaml, .yml, .json or .csv)", path)
	}
}

func baseName(path string) string {
	return strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
}
