package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"

	"travelcatalog/internal/domain"
)

const (
	FileName = "catalog.yml"

	BackendFS     = "fs"
	BackendSQLite = "sqlite"

	LocalePlaceholder = "{locale}"
	SlugPlaceholder   = "{slug}"
)

var placeholderPattern = regexp.MustCompile(`\{[^{}]*\}`)

// Config models catalog.yml.
type Config struct {
	Site struct {
		DefaultLocale string   `yaml:"default_locale" json:"default_locale"`
		Locales       []string `yaml:"locales" json:"locales"`
	} `yaml:"site" json:"site"`
	Content struct {
		Backend string      `yaml:"backend" json:"backend"`
		Root    string      `yaml:"root" json:"root"`
		Cache   CacheConfig `yaml:"cache" json:"cache"`
	} `yaml:"content" json:"content"`
	Server struct {
		Addr          string `yaml:"addr" json:"addr"`
		BasePath      string `yaml:"base_path" json:"base_path"`
		PreviewSecret string `yaml:"preview_secret" json:"-"`
	} `yaml:"server" json:"server"`
	Log struct {
		Level  string `yaml:"level" json:"level"`
		Format string `yaml:"format" json:"format"`
	} `yaml:"log" json:"log"`
	Categories []Category `yaml:"categories" json:"categories"`
}

type CacheConfig struct {
	Enabled bool          `yaml:"enabled" json:"enabled"`
	Size    int           `yaml:"size" json:"size"`
	TTL     time.Duration `yaml:"ttl" json:"ttl"`
}

// Category is one registry entry. DefaultLocale and Locales inherit from site when empty.
type Category struct {
	ID            string         `yaml:"id" json:"id"`
	Master        string         `yaml:"master" json:"master"`
	Item          string         `yaml:"item" json:"item"`
	DefaultLocale string         `yaml:"default_locale,omitempty" json:"default_locale,omitempty"`
	Locales       []string       `yaml:"locales,omitempty" json:"locales,omitempty"`
	DetailSchema  map[string]any `yaml:"detail_schema,omitempty" json:"detail_schema,omitempty"`
}

var categoryIDPattern = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if err := validation.ValidateStruct(&c.Site,
		validation.Field(&c.Site.DefaultLocale, validation.Required, validation.By(localeTag)),
		validation.Field(&c.Site.Locales, validation.Each(validation.By(localeTag))),
	); err != nil {
		return fmt.Errorf("config.site: %w", err)
	}
	if err := validation.ValidateStruct(&c.Content,
		validation.Field(&c.Content.Backend, validation.In(BackendFS, BackendSQLite)),
	); err != nil {
		return fmt.Errorf("config.content: %w", err)
	}
	if c.Content.Cache.Enabled && c.Content.Cache.Size <= 0 {
		return fmt.Errorf("config.content.cache.size must be positive when cache is enabled")
	}
	if c.Content.Cache.TTL < 0 {
		return fmt.Errorf("config.content.cache.ttl must not be negative")
	}
	if len(c.Categories) == 0 {
		return fmt.Errorf("config.categories is required")
	}
	seen := map[string]bool{}
	for i := range c.Categories {
		cat := &c.Categories[i]
		err := validation.ValidateStruct(cat,
			validation.Field(&cat.ID, validation.Required, validation.Match(categoryIDPattern)),
			validation.Field(&cat.Master, validation.Required, validation.By(masterTemplate)),
			validation.Field(&cat.Item, validation.Required, validation.By(itemTemplate)),
			validation.Field(&cat.DefaultLocale, validation.By(localeTag)),
			validation.Field(&cat.Locales, validation.Each(validation.By(localeTag))),
		)
		if err != nil {
			return fmt.Errorf("config.categories[%d]: %w", i, err)
		}
		if seen[cat.ID] {
			return fmt.Errorf("category %s is defined more than once", cat.ID)
		}
		seen[cat.ID] = true
	}
	return nil
}

func localeTag(value any) error {
	s, _ := value.(string)
	if s == "" {
		return nil
	}
	if _, err := language.Parse(s); err != nil {
		return fmt.Errorf("invalid locale %q", s)
	}
	return nil
}

func checkPlaceholders(tmpl string) error {
	for _, p := range placeholderPattern.FindAllString(tmpl, -1) {
		if p != LocalePlaceholder && p != SlugPlaceholder {
			return fmt.Errorf("unknown placeholder %s", p)
		}
	}
	if filepath.IsAbs(tmpl) || strings.Contains(tmpl, "..") {
		return errors.New("must be a relative path inside the content root")
	}
	return nil
}

func masterTemplate(value any) error {
	s, _ := value.(string)
	if err := checkPlaceholders(s); err != nil {
		return err
	}
	if !strings.Contains(s, LocalePlaceholder) {
		return errors.New("must contain {locale}")
	}
	if strings.Contains(s, SlugPlaceholder) {
		return errors.New("must not contain {slug}")
	}
	return nil
}

func itemTemplate(value any) error {
	s, _ := value.(string)
	if err := checkPlaceholders(s); err != nil {
		return err
	}
	if !strings.Contains(s, LocalePlaceholder) || !strings.Contains(s, SlugPlaceholder) {
		return errors.New("must contain {locale} and {slug}")
	}
	return nil
}

// Descriptors resolves inherited locale settings into registry descriptors.
func (c *Config) Descriptors() []domain.CategoryDescriptor {
	out := make([]domain.CategoryDescriptor, 0, len(c.Categories))
	for _, cat := range c.Categories {
		d := domain.CategoryDescriptor{
			ID:                 cat.ID,
			MasterPathTemplate: cat.Master,
			ItemPathTemplate:   cat.Item,
			DefaultLocale:      cat.DefaultLocale,
			Locales:            cat.Locales,
		}
		if d.DefaultLocale == "" {
			d.DefaultLocale = c.Site.DefaultLocale
		}
		if len(d.Locales) == 0 {
			d.Locales = c.Site.Locales
		}
		d.Locales = append([]string(nil), d.Locales...)
		out = append(out, d)
	}
	return out
}

// Schemas returns the inline detail schemas keyed by category id.
func (c *Config) Schemas() map[string]map[string]any {
	out := map[string]map[string]any{}
	for _, cat := range c.Categories {
		if len(cat.DetailSchema) > 0 {
			out[cat.ID] = cat.DetailSchema
		}
	}
	return out
}

// ContentRoot returns the content directory, relative paths anchored at workspace.
func (c *Config) ContentRoot(workspace string) string {
	root := c.Content.Root
	if root == "" {
		root = "content"
	}
	if filepath.IsAbs(root) {
		return root
	}
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, root)
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create one with tcat config init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns the default config if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, FileName)
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// Default returns the default Config struct.
func Default() *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(defaultTemplate)).Decode(&cfg)
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if cfg.Content.Backend == "" {
		cfg.Content.Backend = BackendFS
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `site:
  default_locale: en
  locales: [en, hi]

content:
  backend: fs
  root: content
  cache:
    enabled: true
    size: 512
    ttl: 5m

server:
  addr: 127.0.0.1:8080
  base_path: /v0

log:
  level: info
  format: console

categories:
  - id: adventures
    master: adventures/{locale}/index.json
    item: adventures/{locale}/{slug}.json
  - id: crafts
    master: crafts/{locale}/index.json
    item: crafts/{locale}/{slug}.json
  - id: cuisines
    master: cuisines/{locale}/index.json
    item: cuisines/{locale}/{slug}.json
  - id: dance-forms
    master: dance-forms/{locale}/index.json
    item: dance-forms/{locale}/{slug}.json
  - id: culture-festivals
    master: culture-festivals/{locale}/index.json
    item: culture-festivals/{locale}/{slug}.json
  - id: treks
    master: treks/{locale}/index.json
    item: treks/{locale}/{slug}.json
  - id: wildlife-safaris
    master: wildlife-safaris/{locale}/index.json
    item: wildlife-safaris/{locale}/{slug}.json
  - id: royal-luxury
    master: royal-luxury/{locale}/index.json
    item: royal-luxury/{locale}/{slug}.json
  - id: regions
    master: regions/{locale}/index.json
    item: regions/{locale}/{slug}.json
`
