// Package recommendation serves the static outfit table and the seasonal
// colour profiles.
package recommendation

import (
	"embed"
	"errors"
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/example/smartfit/internal/models"
)

//go:embed data/*.yaml
var dataFS embed.FS

// Profile describes a seasonal colour category.
type Profile struct {
	Description string              `yaml:"description" json:"seasonal_description"`
	Palette     models.ColorPalette `yaml:"color_palette" json:"color_palette"`
}

type table map[string]map[string]map[string][]models.OutfitItem

// Recommender is immutable after construction and safe for concurrent use.
type Recommender struct {
	outfits    table
	profiles   map[string]Profile
	categories []string
}

// Load builds a Recommender from the embedded tables.
func Load() (*Recommender, error) {
	outfits, err := dataFS.ReadFile("data/outfits.yaml")
	if err != nil {
		return nil, fmt.Errorf("read outfit table: %w", err)
	}
	seasons, err := dataFS.ReadFile("data/seasons.yaml")
	if err != nil {
		return nil, fmt.Errorf("read season profiles: %w", err)
	}
	return New(outfits, seasons)
}

// New parses and validates the outfit table and season profiles. Every
// category must cover every season and skin tone with named items, and
// every season must have a profile.
func New(outfitsYAML, seasonsYAML []byte) (*Recommender, error) {
	var outfits table
	if err := yaml.Unmarshal(outfitsYAML, &outfits); err != nil {
		return nil, fmt.Errorf("parse outfit table: %w", err)
	}
	var profiles map[string]Profile
	if err := yaml.Unmarshal(seasonsYAML, &profiles); err != nil {
		return nil, fmt.Errorf("parse season profiles: %w", err)
	}
	if err := validate(outfits, profiles); err != nil {
		return nil, err
	}

	categories := make([]string, 0, len(outfits))
	for category := range outfits {
		categories = append(categories, category)
	}
	sort.Strings(categories)

	return &Recommender{outfits: outfits, profiles: profiles, categories: categories}, nil
}

func validate(outfits table, profiles map[string]Profile) error {
	var errs []error
	if len(outfits) == 0 {
		errs = append(errs, errors.New("outfit table is empty"))
	}
	for category, seasons := range outfits {
		if strings.TrimSpace(category) == "" {
			errs = append(errs, errors.New("outfit table has an empty category key"))
		}
		for _, season := range models.SeasonLabels() {
			tones, ok := seasons[season]
			if !ok {
				errs = append(errs, fmt.Errorf("%s: missing season %s", category, season))
				continue
			}
			for _, tone := range models.SkinToneLabels() {
				items, ok := tones[tone]
				if !ok || len(items) == 0 {
					errs = append(errs, fmt.Errorf("%s/%s: missing skin tone %s", category, season, tone))
					continue
				}
				for i, item := range items {
					if strings.TrimSpace(item.Item) == "" {
						errs = append(errs, fmt.Errorf("%s/%s/%s: item %d has no name", category, season, tone, i))
					}
				}
			}
		}
	}
	for _, season := range models.SeasonLabels() {
		profile, ok := profiles[season]
		if !ok || profile.Description == "" {
			errs = append(errs, fmt.Errorf("season profile %s is missing", season))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid recommendation table: %w", errors.Join(errs...))
	}
	return nil
}

// Recommend returns the items for (season, skin tone, category). Any key
// absent from the table yields an empty list; matching is exact.
func (r *Recommender) Recommend(season, skinTone, category string) []models.OutfitItem {
	items := r.outfits[category][season][skinTone]
	out := make([]models.OutfitItem, len(items))
	copy(out, items)
	return out
}

// Categories returns the known clothing categories in sorted order.
func (r *Recommender) Categories() []string {
	return append([]string(nil), r.categories...)
}

// HasCategory reports whether category is a key of the outfit table.
func (r *Recommender) HasCategory(category string) bool {
	_, ok := r.outfits[category]
	return ok
}

// Profile returns the description and palette for a season.
func (r *Recommender) Profile(season string) (Profile, bool) {
	p, ok := r.profiles[season]
	if !ok {
		return Profile{}, false
	}
	p.Palette = models.ColorPalette{
		LightColors: append([]string(nil), p.Palette.LightColors...),
		DarkColors:  append([]string(nil), p.Palette.DarkColors...),
	}
	return p, true
}
