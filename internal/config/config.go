package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultCacheDir is used when the catalog does not set cache_dir.
const DefaultCacheDir = "build_info_cache"

// Env var names for the API tokens. Tokens are never passed as flags.
const (
	ArtifactoryTokenEnv = "ARTIFACTORY_TOKEN"
	CatalogTokenEnv     = "CATALOG_TOKEN"
)

// Config is the product catalog the engine runs against.
type Config struct {
	ArtifactoryURL string    `yaml:"artifactory_url"`
	CatalogURL     string    `yaml:"catalog_url"`
	CacheDir       string    `yaml:"cache_dir"`
	Products       []Product `yaml:"products"`
}

// Product describes one product and the upstream identifiers attached to it.
// An empty Project means the product has no artifact-store project configured
// and the correlation subsystem is skipped for it.
type Product struct {
	Name           string `yaml:"name"`
	Project        string `yaml:"project"`
	SCMType        string `yaml:"scm_type"`
	OrganizationID int    `yaml:"organization_id"`
}

// Tokens holds the API tokens read from the environment.
type Tokens struct {
	Artifactory string
	Catalog     string
}

// Load reads and validates the product catalog at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if cfg.CacheDir == "" {
		cfg.CacheDir = DefaultCacheDir
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// validate rejects catalogs that cannot be acted on.
func (c *Config) validate() error {
	if len(c.Products) == 0 {
		return fmt.Errorf("config has no products")
	}
	seen := make(map[string]struct{}, len(c.Products))
	for i := range c.Products {
		name := c.Products[i].Name
		if name == "" {
			return fmt.Errorf("product %d has no name", i)
		}
		if _, ok := seen[name]; ok {
			return fmt.Errorf("duplicate product name: %s", name)
		}
		seen[name] = struct{}{}
	}
	return nil
}

// Product returns the product with the given name.
func (c *Config) Product(name string) (*Product, bool) {
	for i := range c.Products {
		if c.Products[i].Name == name {
			return &c.Products[i], true
		}
	}
	return nil, false
}

// LoadDotenv loads a .env file into the process environment. A missing file is
// not an error; existing environment variables are never overwritten.
func LoadDotenv(path string) error {
	if path == "" {
		path = ".env"
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	return nil
}

// TokensFromEnv reads the API tokens from the environment.
func TokensFromEnv() Tokens {
	return Tokens{
		Artifactory: os.Getenv(ArtifactoryTokenEnv),
		Catalog:     os.Getenv(CatalogTokenEnv),
	}
}
