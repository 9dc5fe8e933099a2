// Package config loads the daemon's deployment configuration from an
// HCL file: the catalog DSN, the default page size, and any
// per-backend query template overrides.
package config

import (
	"fmt"

	"github.com/bareos/bvfs/internal/catalog"
	"github.com/hashicorp/hcl/v2/hclsimple"
)

// Config is the decoded shape of a bvfsd.hcl file:
//
//	catalog {
//	  dsn           = "file:/var/lib/bareos/bareos.db"
//	  default_limit = 1000
//	}
//
//	template_override "bvfs_lsdirs_4" {
//	  body = "SELECT ..."
//	}
type Config struct {
	Catalog           CatalogBlock       `hcl:"catalog,block"`
	TemplateOverrides []TemplateOverride `hcl:"template_override,block"`
}

// CatalogBlock holds the connection parameters for the backing SQL
// catalog.
type CatalogBlock struct {
	DSN          string `hcl:"dsn"`
	DefaultLimit *int   `hcl:"default_limit,optional"`
}

// TemplateOverride replaces the body of one named query template (see
// internal/catalog's template registry) for deployments whose catalog
// dialect needs a different query shape than the SQLite default.
type TemplateOverride struct {
	Name string `hcl:"name,label"`
	Body string `hcl:"body"`
}

// Load parses the HCL file at path into a Config.
func Load(path string) (*Config, error) {
	var cfg Config
	if err := hclsimple.DecodeFile(path, nil, &cfg); err != nil {
		return nil, fmt.Errorf("config: load %s: %w", path, err)
	}
	if cfg.Catalog.DSN == "" {
		return nil, fmt.Errorf("config: %s: catalog.dsn is required", path)
	}
	return &cfg, nil
}

// DefaultLimit returns the configured default page size, or fallback
// if the config did not set one.
func (c *Config) DefaultLimit(fallback uint32) uint32 {
	if c.Catalog.DefaultLimit == nil {
		return fallback
	}
	return uint32(*c.Catalog.DefaultLimit)
}

// ApplyTemplateOverrides installs every configured template override
// onto gw.
func (c *Config) ApplyTemplateOverrides(gw *catalog.SQLiteGateway) {
	for _, o := range c.TemplateOverrides {
		gw.OverrideTemplate(o.Name, o.Body)
	}
}
