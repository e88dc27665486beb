package store

import (
	"context"
	"database/sql"

	"github.com/georgysavva/scany/v2/sqlscan"
)

type CredentialSQLiteStore struct {
	rdb, rwdb *sql.DB
}

func NewCredentialSQLiteStore(rdb, rwdb *sql.DB) *CredentialSQLiteStore {
	return &CredentialSQLiteStore{rdb, rwdb}
}

func (store *CredentialSQLiteStore) CreateCredential(
	ctx context.Context,
	name, username, description, secretHash string,
) (*Credential, error) {
	c := &Credential{
		Name:        name,
		Username:    username,
		Description: description,
		SecretHash:  secretHash,
	}
	query := `insert into credentials (
		name,
		username,
		description,
		secret_hash
	)
	values ($1, $2, $3, $4)
	returning credential_id`
	if err := sqlscan.Get(
		ctx, store.rwdb, c, query,
		c.Name, c.Username, c.Description, c.SecretHash,
	); err != nil {
		return nil, err
	}
	return c, nil
}

func (store *CredentialSQLiteStore) ReadCredentialByID(
	ctx context.Context,
	id int64,
) (*Credential, error) {
	c := &Credential{}
	query := `select
		credential_id, name, username, description, secret_hash
	from credentials where credential_id = $1`
	if err := sqlscan.Get(ctx, store.rdb, c, query, id); err != nil {
		return nil, err
	}
	return c, nil
}

func (store *CredentialSQLiteStore) ReadCredentialByName(
	ctx context.Context,
	name string,
) (*Credential, error) {
	c := &Credential{}
	query := `select
		credential_id, name, username, description, secret_hash
	from credentials where name = $1`
	if err := sqlscan.Get(ctx, store.rdb, c, query, name); err != nil {
		return nil, err
	}
	return c, nil
}

func (store *CredentialSQLiteStore) UpdateCredential(
	ctx context.Context,
	id int64,
	name, username, description string,
) error {
	query := `update credentials
	set name = $1,
		username = $2,
		description = $3
	where credential_id = $4`
	_, err := store.rwdb.ExecContext(ctx, query, name, username, description, id)
	return err
}

func (store *CredentialSQLiteStore) DeleteCredential(ctx context.Context, id int64) error {
	query := "delete from credentials where credential_id = $1"
	_, err := store.rwdb.ExecContext(ctx, query, id)
	return err
}

func (store *CredentialSQLiteStore) ListCredentials(ctx context.Context) ([]*Credential, error) {
	query := `select
		credential_id, name, username, description, secret_hash
	from credentials order by name`
	credentials := make([]*Credential, 0)
	err := sqlscan.Select(ctx, store.rdb, &credentials, query)
	return credentials, err
}
