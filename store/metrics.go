package store

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Métricas Prometheus de los stores. Paquete propio no hace falta: los
// stores son los únicos emisores.

var (
	opsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "docjohn_store_ops_total",
		Help: "Operaciones de store por resultado",
	}, []string{"store", "op", "outcome"})

	opLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "docjohn_store_op_seconds",
		Help:    "Latencia de operaciones de store en segundos",
		Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
	}, []string{"store", "op"})
)

// RegisterMetrics registra las métricas en el registry dado (default si
// es nil). Idempotente: tolera AlreadyRegisteredError.
func RegisterMetrics(reg prometheus.Registerer) error {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	for _, c := range []prometheus.Collector{opsTotal, opLatency} {
		if err := reg.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if !errors.As(err, &are) {
				return err
			}
		}
	}
	return nil
}

// track mide una operación; el closure devuelto se difiere con el error
// final para clasificar el resultado.
func track(storeName, op string) func(error) {
	start := time.Now()
	return func(err error) {
		opLatency.WithLabelValues(storeName, op).Observe(time.Since(start).Seconds())
		opsTotal.WithLabelValues(storeName, op, outcome(err)).Inc()
	}
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrConcurrency):
		return "conflict"
	case IsDuplicate(err):
		return "duplicate"
	case errors.Is(err, ErrAmbiguous):
		return "ambiguous"
	case errors.Is(err, ErrInvalid):
		return "invalid"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "error"
	}
}
