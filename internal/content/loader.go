// Package content loads retreat definitions from YAML seed files.
package content

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/hperssn/sages/internal/domain"
)

type seedFile struct {
	Retreats []domain.Retreat `yaml:"retreats"`
}

// Parse decodes and validates one seed document. Unknown fields are
// rejected so typos in step keys don't silently drop content.
func Parse(data []byte) ([]domain.Retreat, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var f seedFile
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("decode seed: %w", err)
	}
	for i := range f.Retreats {
		if err := f.Retreats[i].Validate(); err != nil {
			return nil, err
		}
	}
	return f.Retreats, nil
}

func isSeedFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".yaml" || ext == ".yml"
}

// LoadDir parses every seed file in dir, in name order. A retreat id may
// appear only once across the directory.
func LoadDir(dir string) ([]domain.Retreat, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read seed dir: %w", err)
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() && isSeedFile(e.Name()) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	seen := make(map[int64]string)
	var out []domain.Retreat
	for _, name := range names {
		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		retreats, err := Parse(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		for _, r := range retreats {
			if prev, dup := seen[r.ID]; dup {
				return nil, fmt.Errorf("%s: retreat %d already defined in %s", path, r.ID, prev)
			}
			seen[r.ID] = name
			out = append(out, r)
		}
	}
	return out, nil
}

// Catalog is where seeded retreats are written.
type Catalog interface {
	UpsertRetreat(ctx context.Context, r *domain.Retreat) error
}

// Seed loads dir and upserts every retreat into the catalog.
func Seed(ctx context.Context, dir string, catalog Catalog, log *zap.Logger) (int, error) {
	retreats, err := LoadDir(dir)
	if err != nil {
		return 0, err
	}
	for i := range retreats {
		if err := catalog.UpsertRetreat(ctx, &retreats[i]); err != nil {
			return i, err
		}
	}
	log.Info("seeded retreats", zap.String("dir", dir), zap.Int("count", len(retreats)))
	return len(retreats), nil
}
