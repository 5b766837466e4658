// Package logger provee el logger Zap singleton de la librería.
//
// La aplicación host lo inicializa una vez (Init) o lo ignora: sin Init,
// el primer uso construye un logger dev a nivel info. Los componentes
// piden sub-loggers con Named ("store", "docstore.fs", ...).
package logger

import (
	"sync"

	"go.uber.org/zap"
)

var (
	once     sync.Once
	instance *zap.Logger
)

// Init inicializa el singleton. Idempotente: solo la primera llamada
// tiene efecto.
func Init(cfg Config) {
	once.Do(func() {
		instance = build(cfg)
	})
}

// L retorna el logger singleton, construyendo el default si hace falta.
func L() *zap.Logger {
	if instance == nil {
		Init(Config{Env: "dev", Level: "info"})
	}
	return instance
}

// Named retorna un logger con nombre de componente.
func Named(name string) *zap.Logger {
	return L().Named(name)
}

// With retorna un logger con campos persistentes.
func With(fields ...zap.Field) *zap.Logger {
	return L().With(fields...)
}

// Sync flushea buffers pendientes. Diferirlo en el main del host.
func Sync() error {
	if instance != nil {
		return instance.Sync()
	}
	return nil
}
