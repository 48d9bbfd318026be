// Package definition loads YAML screen definitions, validates them, and
// provides a fast-lookup registry with atomic pointer swap.
package definition

import (
	"bytes"
	"crypto/sha256"
	"embed"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/pitabwire/callcenter/model"
)

//go:embed screens/*.yaml
var embedded embed.FS

// Loader scans directories for YAML screen definitions, parses them, and
// computes SHA-256 checksums.
type Loader struct{}

// NewLoader creates a new definition Loader.
func NewLoader() *Loader {
	return &Loader{}
}

// Load returns the embedded definitions overridden, by screen ID, by the
// definitions found in directories.
func (l *Loader) Load(directories []string) ([]model.ScreenDefinition, error) {
	base, err := l.LoadEmbedded()
	if err != nil {
		return nil, err
	}
	overrides, err := l.LoadAll(directories)
	if err != nil {
		return nil, err
	}
	return Merge(base, overrides), nil
}

// LoadEmbedded parses the definitions compiled into the binary.
func (l *Loader) LoadEmbedded() ([]model.ScreenDefinition, error) {
	var defs []model.ScreenDefinition
	err := fs.WalkDir(embedded, "screens", func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		data, err := embedded.ReadFile(path)
		if err != nil {
			return err
		}
		def, err := l.Parse(data, "embedded:"+path)
		if err != nil {
			return err
		}
		defs = append(defs, def)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("loading embedded definitions: %w", err)
	}
	return defs, nil
}

// LoadAll recursively scans directories for *.yaml and *.yml files and parses
// each into a ScreenDefinition.
func (l *Loader) LoadAll(directories []string) ([]model.ScreenDefinition, error) {
	var defs []model.ScreenDefinition

	for _, dir := range directories {
		err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}
			ext := strings.ToLower(filepath.Ext(path))
			if ext != ".yaml" && ext != ".yml" {
				return nil
			}

			def, err := l.LoadFile(path)
			if err != nil {
				return fmt.Errorf("loading %s: %w", path, err)
			}
			defs = append(defs, def)
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("scanning directory %s: %w", dir, err)
		}
	}

	return defs, nil
}

// LoadFile loads and parses a single YAML definition file.
func (l *Loader) LoadFile(path string) (model.ScreenDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return model.ScreenDefinition{}, fmt.Errorf("reading %s: %w", path, err)
	}
	return l.Parse(data, path)
}

// Parse decodes one definition. Unknown keys are rejected so that typos in
// rule names do not silently disable a check. The checksum covers the raw
// bytes.
func (l *Loader) Parse(data []byte, source string) (model.ScreenDefinition, error) {
	var def model.ScreenDefinition
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&def); err != nil && !errors.Is(err, io.EOF) {
		return model.ScreenDefinition{}, fmt.Errorf("parsing %s: %w", source, err)
	}

	def.Checksum = fmt.Sprintf("%x", sha256.Sum256(data))
	def.SourceFile = source
	return def, nil
}

// Merge combines two definition sets. A definition in overrides replaces the
// base definition with the same ID. The result is ordered by ID.
func Merge(base, overrides []model.ScreenDefinition) []model.ScreenDefinition {
	byID := make(map[string]model.ScreenDefinition, len(base)+len(overrides))
	for _, d := range base {
		byID[d.ID] = d
	}
	for _, d := range overrides {
		byID[d.ID] = d
	}
	out := make([]model.ScreenDefinition, 0, len(byID))
	for _, d := range byID {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
