package docstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Driver representa un backend de documentos capaz de abrir conexiones.
type Driver interface {
	// Name retorna el nombre del driver (ej: "memory", "fs", "mongo", "pg").
	Name() string

	// Open establece la conexión con el almacenamiento.
	Open(ctx context.Context, cfg Config) (Client, error)
}

// Config configuración para abrir una conexión.
type Config struct {
	// Driver a usar: "memory", "fs", "mongo", "pg".
	Driver string `yaml:"driver"`

	// DSN connection string (mongo URI, postgres DSN).
	DSN string `yaml:"dsn"`

	// Database nombre de la base de datos lógica (mongo, pg).
	Database string `yaml:"database"`

	// Root directorio raíz (solo driver fs).
	Root string `yaml:"root"`
}

var (
	driversMu sync.RWMutex
	drivers   = map[string]Driver{}
)

// Register registra un driver. Se llama desde el init() de cada driver;
// el caller los activa con blank imports:
//
//	import _ "github.com/dropDatabas3/docjohn/docstore/drivers/memory"
func Register(d Driver) {
	driversMu.Lock()
	defer driversMu.Unlock()
	if d == nil || d.Name() == "" {
		panic("docstore: Register with nil or unnamed driver")
	}
	if _, dup := drivers[d.Name()]; dup {
		panic(fmt.Sprintf("docstore: driver %q registered twice", d.Name()))
	}
	drivers[d.Name()] = d
}

// GetDriver retorna un driver registrado por nombre.
func GetDriver(name string) (Driver, bool) {
	driversMu.RLock()
	defer driversMu.RUnlock()
	d, ok := drivers[name]
	return d, ok
}

// Drivers retorna los nombres de los drivers registrados, ordenados.
func Drivers() []string {
	driversMu.RLock()
	defer driversMu.RUnlock()
	names := make([]string, 0, len(drivers))
	for n := range drivers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Open abre una conexión usando el driver indicado en cfg.Driver.
func Open(ctx context.Context, cfg Config) (Client, error) {
	d, ok := GetDriver(cfg.Driver)
	if !ok {
		return nil, fmt.Errorf("docstore: unknown driver %q (registered: %v)", cfg.Driver, Drivers())
	}
	c, err := d.Open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("docstore: open %s: %w", cfg.Driver, err)
	}
	return c, nil
}
