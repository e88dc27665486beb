package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/imshubhamkaushik/deploypipe/internal/security"
	"github.com/imshubhamkaushik/deploypipe/internal/store"
)

type CredentialWriter interface {
	CreateCredential(context.Context, string, string, string, string) (*store.Credential, error)
	UpdateCredential(context.Context, int64, string, string, string) error
	DeleteCredential(context.Context, int64) error
}

type CredentialReader interface {
	ReadCredentialByID(context.Context, int64) (*store.Credential, error)
	ReadCredentialByName(context.Context, string) (*store.Credential, error)
	ListCredentials(context.Context) ([]*store.Credential, error)
}

type CredentialStore interface {
	CredentialWriter
	CredentialReader
}

type CredentialServicer interface {
	CreateCredential(context.Context, string, string, string, string) (*store.Credential, error)
	GetCredentialByID(context.Context, int64) (*store.Credential, error)
	ListCredentials(context.Context) ([]*store.Credential, error)
	UpdateCredential(context.Context, int64, string, string, string) error
	DeleteCredential(context.Context, int64) error
	DecryptAES(string) ([]byte, error)
	WithSecret(context.Context, string, func([]byte) error) error
}

// CredentialService stores secrets encrypted at rest and brokers
// scoped access to their plaintext.
type CredentialService struct {
	credentialStore CredentialStore
	encrypter       security.Encrypter
}

func NewCredentialService(
	s CredentialStore,
	encrypter security.Encrypter,
) *CredentialService {
	return &CredentialService{credentialStore: s, encrypter: encrypter}
}

func (s *CredentialService) DecryptAES(hash string) ([]byte, error) {
	return s.encrypter.DecryptAES(hash)
}

// WithSecret resolves a credential by name and hands the decrypted
// value to fn. The plaintext lives only for the duration of the
// callback; the buffer is zeroed before WithSecret returns, so the
// value is not retrievable afterwards.
func (s *CredentialService) WithSecret(
	ctx context.Context,
	id string,
	fn func(secret []byte) error,
) error {
	c, err := s.credentialStore.ReadCredentialByName(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrSecretNotFound{ID: id}
		}
		return err
	}
	secret, err := s.encrypter.DecryptAES(c.SecretHash)
	if err != nil {
		return err
	}
	defer security.Zero(secret)
	return fn(secret)
}

func (s *CredentialService) CreateCredential(
	ctx context.Context,
	name, username, description, secret string,
) (*store.Credential, error) {
	hash := s.encrypter.EncryptAES(secret)
	c, err := s.credentialStore.CreateCredential(ctx, name, username, description, hash)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (s *CredentialService) GetCredentialByID(
	ctx context.Context,
	credentialID int64,
) (*store.Credential, error) {
	return s.credentialStore.ReadCredentialByID(ctx, credentialID)
}

func (s *CredentialService) ListCredentials(ctx context.Context) ([]*store.Credential, error) {
	credentials, err := s.credentialStore.ListCredentials(ctx)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	return credentials, nil
}

func (s *CredentialService) UpdateCredential(
	ctx context.Context,
	credentialID int64,
	name, username, description string,
) error {
	return s.credentialStore.UpdateCredential(ctx, credentialID, name, username, description)
}

func (s *CredentialService) DeleteCredential(ctx context.Context, credentialID int64) error {
	return s.credentialStore.DeleteCredential(ctx, credentialID)
}
