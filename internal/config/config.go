// Package config loads engine settings from a YAML file overlaid with
// environment variables, and validates them against an embedded CUE schema.
package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/roach88/facets/internal/ir"
	"github.com/roach88/facets/internal/tax"
)

//go:embed schema.cue
var schemaCUE string

// Environment variables overriding file settings.
const (
	EnvDBDriver     = "FACETS_DB_DRIVER"
	EnvDBDSN        = "FACETS_DB_DSN"
	EnvRedisURL     = "REDIS_URL"
	EnvCacheBackend = "FACETS_CACHE_BACKEND"
	EnvHTTPAddr     = "FACETS_HTTP_ADDR"
	EnvDebug        = "FACETS_DEBUG"
)

// Database drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Cache backends.
const (
	CacheMemory = "memory"
	CacheSQLite = "sqlite"
	CacheRedis  = "redis"
)

// Config holds every engine setting.
type Config struct {
	Database Database `yaml:"database" json:"database"`
	Cache    Cache    `yaml:"cache" json:"cache"`
	Shop     Shop     `yaml:"shop" json:"shop"`
	Debug    bool     `yaml:"debug" json:"debug"`
	HTTP     HTTP     `yaml:"http" json:"http"`
}

// Database selects the catalog store.
type Database struct {
	Driver string `yaml:"driver" json:"driver"`
	DSN    string `yaml:"dsn" json:"dsn"`
}

// Cache configures the durable cache and in-process caches.
type Cache struct {
	Backend  string `yaml:"backend" json:"backend"`
	RedisURL string `yaml:"redis_url" json:"redis_url"`

	// FacetTTL is the lifetime of cached facet results.
	FacetTTL time.Duration `yaml:"facet_ttl" json:"facet_ttl"`

	ChildrenTTL  time.Duration `yaml:"children_ttl" json:"children_ttl"`
	ChildrenSize int           `yaml:"children_size" json:"children_size"`
}

// Shop holds the store options that change filter semantics.
type Shop struct {
	TaxEnabled                  bool   `yaml:"tax_enabled" json:"tax_enabled"`
	PricesIncludeTax            bool   `yaml:"prices_include_tax" json:"prices_include_tax"`
	TaxDisplayShop              string `yaml:"tax_display_shop" json:"tax_display_shop"`
	AdjustNonBaseLocationPrices bool   `yaml:"adjust_non_base_location_prices" json:"adjust_non_base_location_prices"`
	BaseCountry                 string `yaml:"base_country" json:"base_country"`
	CustomerCountry             string `yaml:"customer_country" json:"customer_country"`
	HideOutOfStock              bool   `yaml:"hide_out_of_stock" json:"hide_out_of_stock"`
	FailOpenTaxonomies          bool   `yaml:"fail_open_taxonomies" json:"fail_open_taxonomies"`
}

// HTTP configures the API server.
type HTTP struct {
	Addr           string   `yaml:"addr" json:"addr"`
	AllowedOrigins []string `yaml:"allowed_origins" json:"allowed_origins"`
}

// Default returns the built-in settings: a local SQLite catalog with its
// own cache table.
func Default() Config {
	return Config{
		Database: Database{Driver: DriverSQLite, DSN: "facets.db"},
		Cache: Cache{
			Backend:      CacheSQLite,
			FacetTTL:     24 * time.Hour,
			ChildrenTTL:  time.Minute,
			ChildrenSize: 1024,
		},
		Shop: Shop{TaxDisplayShop: ir.TaxDisplayExcl},
		HTTP: HTTP{Addr: ":8080", AllowedOrigins: []string{}},
	}
}

// Load reads the YAML file at path over the defaults, loads .env from the
// working directory if present, applies environment overrides and
// validates the result. An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := decode(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Parse decodes YAML over the defaults and validates it. Environment
// variables are not consulted.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	if err := decode(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func decode(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// ApplyEnv overlays settings from environment variables read through
// lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvDBDriver); ok && v != "" {
		c.Database.Driver = v
	}
	if v, ok := lookup(EnvDBDSN); ok && v != "" {
		c.Database.DSN = v
	}
	if v, ok := lookup(EnvRedisURL); ok && v != "" {
		c.Cache.RedisURL = v
	}
	if v, ok := lookup(EnvCacheBackend); ok && v != "" {
		c.Cache.Backend = v
	}
	if v, ok := lookup(EnvHTTPAddr); ok && v != "" {
		c.HTTP.Addr = v
	}
	if v, ok := lookup(EnvDebug); ok && v != "" {
		debug, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvDebug, err)
		}
		c.Debug = debug
	}
	return nil
}

// Validate checks c against the embedded schema.
func (c Config) Validate() error {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile config schema: %w", err)
	}

	if c.HTTP.AllowedOrigins == nil {
		c.HTTP.AllowedOrigins = []string{}
	}
	v := schema.LookupPath(cue.ParsePath("#Config")).Unify(ctx.Encode(c))
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return formatCUEError(err)
	}
	return nil
}

// TaxSettings returns the tax options used to adjust price filters.
func (c Config) TaxSettings() tax.Settings {
	return tax.Settings{
		Enabled:                     c.Shop.TaxEnabled,
		PricesIncludeTax:            c.Shop.PricesIncludeTax,
		DisplayShop:                 c.Shop.TaxDisplayShop,
		AdjustNonBaseLocationPrices: c.Shop.AdjustNonBaseLocationPrices,
		BaseCountry:                 c.Shop.BaseCountry,
		CustomerCountry:             c.Shop.CustomerCountry,
	}
}

// Error is a configuration validation failure.
type Error struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *Error) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("invalid config: %s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Field, e.Message)
	}
	return fmt.Sprintf("invalid config: %s: %s", e.Field, e.Message)
}

// formatCUEError reports the first CUE error with its path and position.
func formatCUEError(err error) error {
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	first := errs[0]
	format, args := first.Msg()
	e := &Error{Field: "config", Message: fmt.Sprintf(format, args...)}
	if path := first.Path(); len(path) > 0 {
		e.Field = strings.Join(path, ".")
	}
	if positions := cueerrors.Positions(first); len(positions) > 0 {
		e.Pos = positions[0]
	}
	return e
}
