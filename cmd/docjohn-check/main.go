// docjohn-check: smoke test de un backend de documentos configurado.
// Abre la conexión, recorre el ciclo completo de un usuario y un rol
// (create → find → claims → conflicto de etag → delete) y reporta.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/dropDatabas3/docjohn"
	"github.com/dropDatabas3/docjohn/docstore"
	_ "github.com/dropDatabas3/docjohn/docstore/drivers/fs"
	_ "github.com/dropDatabas3/docjohn/docstore/drivers/memory"
	_ "github.com/dropDatabas3/docjohn/docstore/drivers/mongo"
	_ "github.com/dropDatabas3/docjohn/docstore/drivers/pg"
	"github.com/dropDatabas3/docjohn/identity"
	"github.com/dropDatabas3/docjohn/store"
)

var cfgPath string

func main() {
	_ = godotenv.Load()

	root := &cobra.Command{
		Use:     "docjohn-check",
		Short:   "Smoke test del storage de identidad sobre documentos",
		Version: docjohn.Version,
		RunE:    runCheck,
	}
	root.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "ruta al YAML de configuración (opcional)")

	root.AddCommand(&cobra.Command{
		Use:   "migrate",
		Short: "Aplica las migraciones del driver (solo pg)",
		RunE:  runMigrate,
	})
	root.AddCommand(&cobra.Command{
		Use:   "indexes",
		Short: "Crea los índices de consulta (solo mongo)",
		RunE:  runIndexes,
	})

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "❌", err)
		os.Exit(1)
	}
}

func open(ctx context.Context) (*store.Store, docstore.Client, *docjohn.Config, error) {
	cfg, err := docjohn.Load(cfgPath)
	if err != nil {
		return nil, nil, nil, err
	}
	s, client, err := docjohn.Open(ctx, cfg)
	if err != nil {
		return nil, nil, nil, err
	}
	return s, client, cfg, nil
}

func runCheck(cmd *cobra.Command, args []string) error {
	fmt.Println("🚀 docjohn smoke test")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	s, client, cfg, err := open(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	fmt.Printf("📦 driver=%s collection=%s\n", client.Name(), cfg.Store.UserCollection)

	fmt.Println("\n[1] Ping...")
	if err := client.Ping(ctx); err != nil {
		return fmt.Errorf("ping: %w", err)
	}

	users, roles := s.Users(), s.Roles()
	suffix := uuid.NewString()[:8]

	fmt.Println("[2] Creando rol...")
	role, err := roles.Create(ctx, &identity.Role{
		Name:           "smoke-admins-" + suffix,
		NormalizedName: identity.Normalize("smoke-admins-" + suffix),
	})
	if err != nil {
		return err
	}

	fmt.Println("[3] Creando usuario...")
	name := "smoke-" + suffix
	u, err := users.Create(ctx, &identity.User{
		UserName:           name,
		NormalizedUserName: identity.Normalize(name),
		Email:              name + "@example.test",
		NormalizedEmail:    identity.Normalize(name + "@example.test"),
		SecurityStamp:      uuid.NewString(),
	})
	if err != nil {
		return err
	}

	fmt.Println("[4] FindByName + claims + rol...")
	found, err := users.FindByName(ctx, u.NormalizedUserName)
	if err != nil {
		return err
	}
	if found == nil {
		return fmt.Errorf("user %s not found after create", u.ID)
	}
	if err := users.AddClaims(ctx, found, identity.Claim{Type: "smoke", Value: "true"}); err != nil {
		return err
	}
	if err := users.AddToRoles(ctx, found, role.NormalizedName); err != nil {
		return err
	}
	members, err := users.GetUsersInRole(ctx, role.NormalizedName)
	if err != nil {
		return err
	}
	fmt.Printf("   %d miembro(s) en %s\n", len(members), role.Name)

	fmt.Println("[5] Conflicto de etag esperado...")
	stale := *u // etag anterior a los writes de arriba
	if _, err := users.Update(ctx, &stale); !store.IsConcurrencyFailure(err) {
		return fmt.Errorf("expected concurrency failure, got %v", err)
	}
	fmt.Println("   ✅ ErrConcurrency reportado")

	fmt.Println("[6] Limpieza...")
	if err := roles.Delete(ctx, role); err != nil {
		return err
	}
	if _, err := s.RemoveRoleFromUsers(ctx, role.NormalizedName); err != nil {
		return err
	}
	fresh, err := users.FindByID(ctx, u.ID)
	if err != nil {
		return err
	}
	if fresh != nil {
		if err := users.Delete(ctx, fresh); err != nil {
			return err
		}
	}

	fmt.Println("\n✅ Todo OK")
	return nil
}

// unwrap llega al cliente del driver aunque esté decorado por el cache,
// que no reenvía las capacidades opcionales (Migrate, EnsureIndexes).
func unwrap(client docstore.Client) docstore.Client {
	for {
		u, ok := client.(interface{ Unwrap() docstore.Client })
		if !ok {
			return client
		}
		client = u.Unwrap()
	}
}

func runMigrate(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	_, client, _, err := open(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	m, ok := unwrap(client).(interface{ Migrate(context.Context) error })
	if !ok {
		return fmt.Errorf("driver %s does not support migrations", client.Name())
	}
	if err := m.Migrate(ctx); err != nil {
		return err
	}
	fmt.Println("✅ migraciones aplicadas")
	return nil
}

func runIndexes(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	_, client, cfg, err := open(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	ix, ok := unwrap(client).(interface {
		EnsureIndexes(context.Context, string) error
	})
	if !ok {
		return fmt.Errorf("driver %s does not support index management", client.Name())
	}
	cols := []string{cfg.Store.UserCollection}
	if cfg.Store.RoleCollection != "" && cfg.Store.RoleCollection != cfg.Store.UserCollection {
		cols = append(cols, cfg.Store.RoleCollection)
	}
	for _, col := range cols {
		if err := ix.EnsureIndexes(ctx, col); err != nil {
			return err
		}
		fmt.Printf("✅ índices en %s\n", col)
	}
	return nil
}
