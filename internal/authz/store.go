package authz

import "context"

// AccountStore persists accounts keyed by identity.
type AccountStore interface {
	FindAccount(ctx context.Context, identity string) (*Account, error)
	// CreateAccount returns ErrConflict if the identity already exists.
	CreateAccount(ctx context.Context, account *Account) error
	// SaveAccount replaces the stored account atomically. It returns
	// ErrNotFound if the account does not exist.
	SaveAccount(ctx context.Context, account *Account) error
	// FindByAuthorization lists accounts whose entry for appID holds key
	// equal to value.
	FindByAuthorization(ctx context.Context, appID, key string, value any) ([]*Account, error)
	// FindByRole lists accounts holding role.
	FindByRole(ctx context.Context, role string) ([]*Account, error)
}

// RoleStore persists role records keyed by name.
type RoleStore interface {
	RoleLookup
	// PutRole inserts or replaces a role.
	PutRole(ctx context.Context, role *Role) error
}

// Store is the full persistence contract of the service.
type Store interface {
	AccountStore
	RoleStore
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}
