package testutil

import (
	"context"

	"github.com/imshubhamkaushik/deploypipe/internal/store"
	"github.com/stretchr/testify/mock"
)

type MockCredentialService struct {
	mock.Mock
}

func (m *MockCredentialService) CreateCredential(
	ctx context.Context,
	name, username, description, secret string,
) (*store.Credential, error) {
	args := m.Called(ctx, name, username, description, secret)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*store.Credential), nil
}

func (m *MockCredentialService) GetCredentialByID(
	ctx context.Context,
	id int64,
) (*store.Credential, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*store.Credential), nil
}

func (m *MockCredentialService) ListCredentials(ctx context.Context) ([]*store.Credential, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*store.Credential), nil
}

func (m *MockCredentialService) UpdateCredential(
	ctx context.Context,
	id int64,
	name, username, description string,
) error {
	args := m.Called(ctx, id, name, username, description)
	return args.Error(0)
}

func (m *MockCredentialService) DeleteCredential(ctx context.Context, id int64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockCredentialService) DecryptAES(hash string) ([]byte, error) {
	args := m.Called(hash)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), nil
}

func (m *MockCredentialService) WithSecret(
	ctx context.Context,
	id string,
	fn func(secret []byte) error,
) error {
	args := m.Called(ctx, id, fn)
	return args.Error(0)
}
