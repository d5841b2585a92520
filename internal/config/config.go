// Package config loads the chain definition: agents, recipes and
// routes, plus the simulation seed.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/talgya/chainflow/internal/recipe"
)

type Mine struct {
	ID             string   `yaml:"id"`
	Name           string   `yaml:"name"`
	Capacity       float64  `yaml:"capacity"`
	ExtractionRate float64  `yaml:"extraction_rate"`
	Ores           []string `yaml:"ores"`
}

type Processor struct {
	ID       string   `yaml:"id"`
	Name     string   `yaml:"name"`
	Capacity float64  `yaml:"capacity"`
	Lines    []string `yaml:"lines"`
	Recipes  []string `yaml:"recipes"`
}

type Manufacturer struct {
	ID       string   `yaml:"id"`
	Name     string   `yaml:"name"`
	Capacity float64  `yaml:"capacity"`
	Lines    []string `yaml:"lines"`
	Recipes  []string `yaml:"recipes"`
}

type Distributor struct {
	ID       string   `yaml:"id"`
	Name     string   `yaml:"name"`
	Capacity float64  `yaml:"capacity"`
	Zones    []string `yaml:"zones"`
}

type Retailer struct {
	ID            string   `yaml:"id"`
	Name          string   `yaml:"name"`
	Capacity      float64  `yaml:"capacity"`
	Channels      []string `yaml:"channels"`
	CustomerZones []string `yaml:"customer_zones"`
}

// RecipeDef is a recipe as written in config, with a human-readable
// duration ("4h", "90m").
type RecipeDef struct {
	Name              string             `yaml:"name"`
	Inputs            map[string]float64 `yaml:"inputs"`
	Output            string             `yaml:"output"`
	Yield             float64            `yaml:"yield"`
	Duration          string             `yaml:"duration"`
	EnergyCostPerUnit float64            `yaml:"energy_cost_per_unit"`
	RequiredLine      string             `yaml:"required_line"`
	MinQuality        float64            `yaml:"min_quality"`
}

type Routes struct {
	Processing    map[string]string `yaml:"processing"`
	Manufacturing map[string]string `yaml:"manufacturing"`
	Distribution  map[string]string `yaml:"distribution"`
	Retail        map[string]string `yaml:"retail"`
}

type Config struct {
	Seed int64 `yaml:"seed"`

	Mines         []Mine         `yaml:"mines"`
	Processors    []Processor    `yaml:"processors"`
	Manufacturers []Manufacturer `yaml:"manufacturers"`
	Distributors  []Distributor  `yaml:"distributors"`
	Retailers     []Retailer     `yaml:"retailers"`

	Recipes []RecipeDef `yaml:"recipes"`

	Routes Routes `yaml:"routes"`
}

// Load reads and validates a YAML config file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if len(c.Mines) == 0 {
		return fmt.Errorf("config: at least one mine required")
	}
	var ids []string
	for _, m := range c.Mines {
		ids = append(ids, m.ID)
	}
	for _, p := range c.Processors {
		ids = append(ids, p.ID)
	}
	for _, m := range c.Manufacturers {
		ids = append(ids, m.ID)
	}
	for _, d := range c.Distributors {
		ids = append(ids, d.ID)
	}
	for _, r := range c.Retailers {
		ids = append(ids, r.ID)
	}
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			return fmt.Errorf("config: duplicate agent id %q", id)
		}
		seen[id] = true
	}
	for _, r := range c.Recipes {
		if _, err := buildRecipe(r); err != nil {
			return err
		}
	}
	return nil
}

// RecipeBook converts the named recipe definitions into a book. Every
// name must exist in the config.
func (c *Config) RecipeBook(names []string) (recipe.Book, error) {
	byName := make(map[string]RecipeDef, len(c.Recipes))
	for _, r := range c.Recipes {
		byName[r.Name] = r
	}
	book := make(recipe.Book, len(names))
	for _, name := range names {
		def, ok := byName[name]
		if !ok {
			return nil, fmt.Errorf("config: unknown recipe %q", name)
		}
		r, err := buildRecipe(def)
		if err != nil {
			return nil, err
		}
		book[name] = r
	}
	return book, nil
}

func buildRecipe(def RecipeDef) (recipe.Recipe, error) {
	d, err := time.ParseDuration(def.Duration)
	if err != nil {
		return recipe.Recipe{}, fmt.Errorf("recipe %s: bad duration %q: %w", def.Name, def.Duration, err)
	}
	r := recipe.Recipe{
		Name:              def.Name,
		Inputs:            def.Inputs,
		Output:            def.Output,
		Yield:             def.Yield,
		Duration:          d,
		EnergyCostPerUnit: def.EnergyCostPerUnit,
		RequiredLine:      def.RequiredLine,
		MinQuality:        def.MinQuality,
	}
	if err := r.Validate(); err != nil {
		return recipe.Recipe{}, fmt.Errorf("recipe %s: %w", def.Name, err)
	}
	return r, nil
}

// Default returns the demo chain: a fertilizer line and a steel line
// sharing one mine pair, processor, plant, distributor and store.
func Default() *Config {
	return &Config{
		Seed: 1,
		Mines: []Mine{
			{ID: "MINE_PHOS", Name: "Phosphorite Mine", Capacity: 5000, ExtractionRate: 500, Ores: []string{"Phosphorite"}},
			{ID: "MINE_IRON", Name: "Iron Ore Mine", Capacity: 5000, ExtractionRate: 400, Ores: []string{"Iron_Ore"}},
		},
		Processors: []Processor{
			{ID: "PROC_01", Name: "Regional Processing Plant", Capacity: 4000,
				Lines:   []string{"beneficiation", "smelting"},
				Recipes: []string{"phosphorite_beneficiation", "iron_smelting"}},
		},
		Manufacturers: []Manufacturer{
			{ID: "MFG_01", Name: "Finished Goods Plant", Capacity: 3000,
				Lines:   []string{"bagging", "rolling"},
				Recipes: []string{"fertilizer_bagging", "beam_rolling"}},
		},
		Distributors: []Distributor{
			{ID: "DIST_01", Name: "Central Distribution", Capacity: 2500,
				Zones: []string{"Zone_A", "Zone_B", "Zone_C"}},
		},
		Retailers: []Retailer{
			{ID: "RETAIL_01", Name: "Building & Farm Supply", Capacity: 1500,
				Channels:      []string{"direct_sales", "online", "wholesale"},
				CustomerZones: []string{"agricultural", "commercial", "industrial", "residential"}},
		},
		Recipes: []RecipeDef{
			{Name: "phosphorite_beneficiation", Inputs: map[string]float64{"Phosphorite": 1},
				Output: "Processed_Phosphorite", Yield: 0.82, Duration: "4h",
				EnergyCostPerUnit: 2.5, RequiredLine: "beneficiation", MinQuality: 0.5},
			{Name: "iron_smelting", Inputs: map[string]float64{"Iron_Ore": 1},
				Output: "Steel", Yield: 0.75, Duration: "6h",
				EnergyCostPerUnit: 4.0, RequiredLine: "smelting", MinQuality: 0.5},
			{Name: "fertilizer_bagging", Inputs: map[string]float64{"Processed_Phosphorite": 1},
				Output: "Bagged_Fertilizer", Yield: 0.95, Duration: "2h",
				EnergyCostPerUnit: 1.0, RequiredLine: "bagging", MinQuality: 0.6},
			{Name: "beam_rolling", Inputs: map[string]float64{"Steel": 1},
				Output: "Steel_Beams", Yield: 0.88, Duration: "3h",
				EnergyCostPerUnit: 3.0, RequiredLine: "rolling", MinQuality: 0.6},
		},
		Routes: Routes{
			Processing: map[string]string{
				"Phosphorite": "PROC_01",
				"Iron_Ore":    "PROC_01",
			},
			Manufacturing: map[string]string{
				"Processed_Phosphorite": "MFG_01",
				"Steel":                 "MFG_01",
			},
			Distribution: map[string]string{
				"Bagged_Fertilizer": "DIST_01",
				"Steel_Beams":       "DIST_01",
			},
			Retail: map[string]string{
				"Bagged_Fertilizer": "RETAIL_01",
				"Steel_Beams":       "RETAIL_01",
			},
		},
	}
}
