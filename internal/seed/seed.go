// Package seed loads demo agents, works and purchases and replays them
// through the ledger's public operations.
package seed

import (
	"context"
	_ "embed"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/celerix-dev/celerix-market/pkg/schema"
	"github.com/celerix-dev/celerix-market/pkg/sdk"
)

//go:embed default.yaml
var defaultSeed []byte

// File is the on-disk seed format. Works reference their parent and
// purchases reference their work by key, so ids are assigned by the ledger.
type File struct {
	Agents    []schema.Agent `yaml:"agents"`
	Works     []Work         `yaml:"works"`
	Purchases []Purchase     `yaml:"purchases"`
}

type Work struct {
	Key         string                `yaml:"key"`
	Title       string                `yaml:"title"`
	Description string                `yaml:"description"`
	Content     string                `yaml:"content"`
	Style       string                `yaml:"style"`
	Creator     int64                 `yaml:"creator"`
	Parent      string                `yaml:"parent"`
	Price       string                `yaml:"price"`
	License     string                `yaml:"license"`
	Tags        []string              `yaml:"tags"`
	Music       *schema.MusicMetadata `yaml:"music"`
}

type Purchase struct {
	Work    string `yaml:"work"`
	Buyer   int64  `yaml:"buyer"`
	Purpose string `yaml:"purpose"`
}

// Load reads a seed file, or the built-in demo data when path is empty.
func Load(path string) (*File, error) {
	data := defaultSeed
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("seed: read %s: %w", path, err)
		}
		data = b
	}
	return Parse(data)
}

// Parse decodes seed YAML.
func Parse(data []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("seed: parse: %w", err)
	}
	return &f, nil
}

// Ledger is the subset of the ledger seeding writes through.
type Ledger interface {
	sdk.WorkWriter
	sdk.Purchaser
}

// Apply creates every work and purchase in file order, so the ledger's own
// validation, lineage and revenue rules apply to seed data too.
func Apply(ctx context.Context, l Ledger, f *File, log zerolog.Logger) error {
	ids := make(map[string]int64, len(f.Works))

	for _, w := range f.Works {
		style, ok := schema.ParseStyle(w.Style)
		if !ok {
			return fmt.Errorf("seed: work %q: unknown style %q", w.Key, w.Style)
		}
		price, err := schema.ParseAmount(w.Price)
		if err != nil {
			return fmt.Errorf("seed: work %q: %w", w.Key, err)
		}
		in := schema.CreateWorkInput{
			CreatorAgentID: w.Creator,
			Title:          w.Title,
			Description:    w.Description,
			Content:        w.Content,
			Style:          style,
			License:        schema.License(w.License),
			Tags:           w.Tags,
			Price:          price,
			Music:          w.Music,
		}
		if w.Parent != "" {
			pid, ok := ids[w.Parent]
			if !ok {
				return fmt.Errorf("seed: work %q: parent %q must be listed earlier", w.Key, w.Parent)
			}
			in.ParentID = &pid
		}
		created, err := l.CreateWork(ctx, in)
		if err != nil {
			return fmt.Errorf("seed: work %q: %w", w.Key, err)
		}
		if w.Key != "" {
			ids[w.Key] = created.ID
		}
	}

	for i, p := range f.Purchases {
		wid, ok := ids[p.Work]
		if !ok {
			return fmt.Errorf("seed: purchase %d: unknown work %q", i+1, p.Work)
		}
		if _, err := l.Purchase(ctx, wid, p.Buyer, p.Purpose); err != nil {
			return fmt.Errorf("seed: purchase %d: %w", i+1, err)
		}
	}

	log.Info().
		Int("works", len(f.Works)).
		Int("purchases", len(f.Purchases)).
		Msg("seed data applied")
	return nil
}
