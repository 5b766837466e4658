package store

import (
	"go.uber.org/zap"

	"github.com/dropDatabas3/docjohn/docstore"
	"github.com/dropDatabas3/docjohn/internal/observability/logger"
)

// Store compone el cliente de documentos con las opciones y expone los
// stores de usuarios y roles. No es dueño de la conexión: abrirla y
// cerrarla es responsabilidad de la aplicación host.
type Store struct {
	client docstore.Client
	opts   Options
	log    *zap.Logger
}

// New crea un Store sobre una conexión ya abierta.
func New(client docstore.Client, opts Options) (*Store, error) {
	if client == nil {
		return nil, ErrInvalid
	}
	o, err := opts.withDefaults()
	if err != nil {
		return nil, err
	}
	return &Store{
		client: client,
		opts:   o,
		log:    logger.Named("store").With(zap.String("driver", client.Name())),
	}, nil
}

// Users retorna el store de usuarios.
func (s *Store) Users() *UserStore {
	return &UserStore{s: s, log: s.log.Named("users")}
}

// Roles retorna el store de roles.
func (s *Store) Roles() *RoleStore {
	return &RoleStore{s: s, log: s.log.Named("roles")}
}
