// Package docjohn persiste las entidades de un framework de identidad
// (usuarios, roles, claims, logins, tokens) en una base de documentos.
// Este paquete raíz junta la configuración y el wiring; la semántica
// vive en store (operaciones), identity (modelo + codec) y docstore
// (contrato con el motor + drivers).
package docjohn

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dropDatabas3/docjohn/cache"
	"github.com/dropDatabas3/docjohn/docstore"
	"github.com/dropDatabas3/docjohn/internal/observability/logger"
	"github.com/dropDatabas3/docjohn/store"
)

// Config configuración completa de la librería.
type Config struct {
	Storage docstore.Config `yaml:"storage"`
	Store   store.Options   `yaml:"store"`

	Cache struct {
		// Kind "none" (default), "memory" o "redis".
		Kind string `yaml:"kind"`
		// TTL vida de cada entrada. Default "2m".
		TTL   string `yaml:"ttl"`
		Redis struct {
			Addr   string `yaml:"addr"`
			DB     int    `yaml:"db"`
			Prefix string `yaml:"prefix"`
		} `yaml:"redis"`
	} `yaml:"cache"`

	Log struct {
		// Env "dev" o "prod".
		Env   string `yaml:"env"`
		Level string `yaml:"level"`
	} `yaml:"log"`
}

// Load lee la configuración YAML y aplica overrides de entorno
// (DOCJOHN_DRIVER, DOCJOHN_DSN, DOCJOHN_DATABASE, DOCJOHN_ROOT,
// DOCJOHN_CACHE, DOCJOHN_LOG_LEVEL, DOCJOHN_REDIS_ADDR, DOCJOHN_REDIS_DB).
func Load(path string) (*Config, error) {
	var c Config
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(b, &c); err != nil {
			return nil, fmt.Errorf("config %s: %w", path, err)
		}
	}

	// sane defaults
	if c.Storage.Driver == "" {
		c.Storage.Driver = "memory"
	}
	if c.Store.UserCollection == "" {
		c.Store.UserCollection = "identity"
	}
	if c.Cache.Kind == "" {
		c.Cache.Kind = "none"
	}
	if c.Cache.TTL == "" {
		c.Cache.TTL = "2m"
	}

	// overrides de entorno
	if v, ok := getEnvStr("DOCJOHN_DRIVER"); ok {
		c.Storage.Driver = v
	}
	if v, ok := getEnvStr("DOCJOHN_DSN"); ok {
		c.Storage.DSN = v
	}
	if v, ok := getEnvStr("DOCJOHN_DATABASE"); ok {
		c.Storage.Database = v
	}
	if v, ok := getEnvStr("DOCJOHN_ROOT"); ok {
		c.Storage.Root = v
	}
	if v, ok := getEnvStr("DOCJOHN_CACHE"); ok {
		c.Cache.Kind = v
	}
	if v, ok := getEnvStr("DOCJOHN_LOG_LEVEL"); ok {
		c.Log.Level = v
	}
	if v, ok := getEnvStr("DOCJOHN_REDIS_ADDR"); ok {
		c.Cache.Redis.Addr = v
	}
	if v, ok := getEnvInt("DOCJOHN_REDIS_DB"); ok {
		c.Cache.Redis.DB = v
	}

	return &c, nil
}

// Open abre la conexión de documentos según la config, le aplica el cache
// si corresponde y construye el Store. El Client retornado es del caller:
// cerrarlo es suyo, el Store nunca lo hace.
func Open(ctx context.Context, cfg *Config) (*store.Store, docstore.Client, error) {
	logger.Init(logger.Config{Env: cfg.Log.Env, Level: cfg.Log.Level, ServiceName: "docjohn"})

	client, err := docstore.Open(ctx, cfg.Storage)
	if err != nil {
		return nil, nil, err
	}

	wrapped, err := wrapCache(client, cfg)
	if err != nil {
		_ = client.Close()
		return nil, nil, err
	}

	s, err := store.New(wrapped, cfg.Store)
	if err != nil {
		_ = client.Close()
		return nil, nil, err
	}
	return s, wrapped, nil
}

func wrapCache(client docstore.Client, cfg *Config) (docstore.Client, error) {
	kind := strings.ToLower(strings.TrimSpace(cfg.Cache.Kind))
	if kind == "" || kind == "none" {
		return client, nil
	}
	ttl, err := time.ParseDuration(cfg.Cache.TTL)
	if err != nil {
		return nil, fmt.Errorf("config: cache ttl %q: %w", cfg.Cache.TTL, err)
	}
	switch kind {
	case "memory":
		return cache.Wrap(client, cache.NewMemory(ttl), ttl), nil
	case "redis":
		if cfg.Cache.Redis.Addr == "" {
			return nil, fmt.Errorf("config: cache redis requires addr")
		}
		return cache.Wrap(client, cache.NewRedis(cfg.Cache.Redis.Addr, cfg.Cache.Redis.DB, cfg.Cache.Redis.Prefix), ttl), nil
	default:
		return nil, fmt.Errorf("config: unknown cache kind %q", cfg.Cache.Kind)
	}
}

// ---- Helpers env ----

func getEnvStr(key string) (string, bool) {
	v := os.Getenv(key)
	return v, v != ""
}

func getEnvInt(key string) (int, bool) {
	if s, ok := getEnvStr(key); ok {
		if i, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			return i, true
		}
	}
	return 0, false
}
