// Package mongo implements the account and role store on MongoDB, using the
// document shapes of the original deployment: accounts keyed by email and
// roles keyed by name in the "Accounts" database.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"satauth.org/internal/authz"
)

const (
	accountsCollection = "accounts"
	rolesCollection    = "roles"
)

// Store implements authz.Store on MongoDB.
type Store struct {
	client   *mongo.Client
	accounts *mongo.Collection
	roles    *mongo.Collection
}

var _ authz.Store = (*Store)(nil)

// Open connects to uri, verifies the connection and ensures the unique
// indexes that back identity and role-name uniqueness.
func Open(ctx context.Context, uri, dbName string) (*Store, error) {
	if uri == "" {
		return nil, errors.New("mongo uri is empty")
	}
	cli, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}
	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := cli.Ping(pctx, readpref.Primary()); err != nil {
		_ = cli.Disconnect(ctx)
		return nil, err
	}

	db := cli.Database(dbName)
	s := &Store{
		client:   cli,
		accounts: db.Collection(accountsCollection),
		roles:    db.Collection(rolesCollection),
	}
	if err := s.ensureIndexes(ctx); err != nil {
		_ = cli.Disconnect(ctx)
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureIndexes(ctx context.Context) error {
	if _, err := s.accounts.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "roles", Value: 1}}},
	}); err != nil {
		return fmt.Errorf("account indexes: %w", err)
	}
	if _, err := s.roles.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "name", Value: 1}},
		Options: options.Index().SetUnique(true),
	}); err != nil {
		return fmt.Errorf("role indexes: %w", err)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, readpref.Primary())
}

func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func (s *Store) FindAccount(ctx context.Context, identity string) (*authz.Account, error) {
	var doc accountDoc
	err := s.accounts.FindOne(ctx, bson.M{"email": identity}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("%w: account %s", authz.ErrNotFound, identity)
	}
	if err != nil {
		return nil, err
	}
	return doc.account()
}

func (s *Store) CreateAccount(ctx context.Context, account *authz.Account) error {
	_, err := s.accounts.InsertOne(ctx, newAccountDoc(account))
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("%w: account %s", authz.ErrConflict, account.Identity)
	}
	return err
}

// SaveAccount replaces the whole document, so concurrent writers resolve as
// last write wins.
func (s *Store) SaveAccount(ctx context.Context, account *authz.Account) error {
	res, err := s.accounts.ReplaceOne(ctx, bson.M{"email": account.Identity}, newAccountDoc(account))
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("%w: account %s", authz.ErrNotFound, account.Identity)
	}
	return nil
}

func (s *Store) FindByAuthorization(ctx context.Context, appID, key string, value any) ([]*authz.Account, error) {
	return s.findAccounts(ctx, authorizationFilter(appID, key, value))
}

func (s *Store) FindByRole(ctx context.Context, role string) ([]*authz.Account, error) {
	return s.findAccounts(ctx, bson.M{"roles": role})
}

func (s *Store) findAccounts(ctx context.Context, filter bson.M) ([]*authz.Account, error) {
	cur, err := s.accounts.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "email", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	out := make([]*authz.Account, 0)
	for cur.Next(ctx) {
		var doc accountDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		acc, err := doc.account()
		if err != nil {
			return nil, err
		}
		out = append(out, acc)
	}
	return out, cur.Err()
}

func (s *Store) FindRole(ctx context.Context, name string) (*authz.Role, error) {
	var doc roleDoc
	err := s.roles.FindOne(ctx, bson.M{"name": name}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("%w: role %s", authz.ErrNotFound, name)
	}
	if err != nil {
		return nil, err
	}
	return doc.role()
}

func (s *Store) PutRole(ctx context.Context, role *authz.Role) error {
	_, err := s.roles.ReplaceOne(ctx, bson.M{"name": role.Name}, newRoleDoc(role), options.Replace().SetUpsert(true))
	return err
}
