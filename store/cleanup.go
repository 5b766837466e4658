package store

import (
	"context"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// cleanupConcurrency límite de updates en vuelo durante la compensación.
const cleanupConcurrency = 8

// RemoveRoleFromUsers es la limpieza compensatoria tras borrar un rol:
// un update independiente por cada usuario que conserva la membresía
// stale. NO es una transacción: cada update puede fallar por separado
// (típicamente ErrConcurrency si el usuario fue tocado en el medio) y los
// ya aplicados quedan aplicados. Retorna cuántos usuarios se limpiaron;
// ante error parcial el caller decide si reintenta la pasada completa
// (la operación es idempotente).
func (s *Store) RemoveRoleFromUsers(ctx context.Context, normalizedRoleName string) (int, error) {
	users := s.Users()

	members, err := users.GetUsersInRole(ctx, normalizedRoleName)
	if err != nil {
		return 0, err
	}
	if len(members) == 0 {
		return 0, nil
	}

	var cleaned atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cleanupConcurrency)
	for _, u := range members {
		u := u
		g.Go(func() error {
			if err := users.RemoveFromRoles(gctx, u, normalizedRoleName); err != nil {
				return err
			}
			cleaned.Add(1)
			return nil
		})
	}
	err = g.Wait()

	s.log.Info("role cleanup pass",
		zap.String("role", normalizedRoleName),
		zap.Int("members", len(members)),
		zap.Int64("cleaned", cleaned.Load()),
		zap.Error(err))
	return int(cleaned.Load()), err
}
