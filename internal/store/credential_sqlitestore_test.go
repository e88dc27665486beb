package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

type credentialSQLiteStoreSuite struct {
	credentialStore *CredentialSQLiteStore
	db              *sql.DB
	suite.Suite
}

func TestCredentialSQLiteStore(t *testing.T) {
	suite.Run(t, new(credentialSQLiteStoreSuite))
}

func (suite *credentialSQLiteStoreSuite) SetupSuite() {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		log.Fatal(err)
	}
	suite.db = db
	_, err = db.Exec("PRAGMA foreign_keys = ON;")
	if err != nil {
		log.Fatal(err)
	}

	RunMigrations(db, "migrations")

	suite.credentialStore = NewCredentialSQLiteStore(db, db)
}

func (suite *credentialSQLiteStoreSuite) TearDownSuite() {
	_ = suite.db.Close()
}

func (suite *credentialSQLiteStoreSuite) TestCredentialSQLiteStore_CreateCredential() {
	suite.Run("success - credential created", func() {
		// arrange
		name := fmt.Sprintf("credential%d", time.Now().UTC().UnixNano())

		// act
		c, err := suite.credentialStore.CreateCredential(
			context.Background(),
			name,
			"deploy",
			"registry push token",
			"hash",
		)

		// assert
		suite.NoError(err)
		suite.NotNil(c)
		suite.NotEqual(0, c.CredentialID)
		suite.Equal(name, c.Name)
		suite.Equal("deploy", c.Username)
		suite.Equal("registry push token", c.Description)
		suite.Equal("hash", c.SecretHash)
	})
	suite.Run("failure - duplicate name", func() {
		// arrange
		existing := suite.createCredential()

		// act
		c, err := suite.credentialStore.CreateCredential(
			context.Background(),
			existing.Name,
			"",
			"",
			"hash",
		)

		// assert
		suite.Error(err)
		suite.Nil(c)
		var sqliteErr *sqlite.Error
		suite.True(errors.As(err, &sqliteErr))
		suite.Equal(sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqliteErr.Code())
	})
}

func (suite *credentialSQLiteStoreSuite) TestCredentialSQLiteStore_ReadCredentialByID() {
	suite.Run("success - credential found", func() {
		// arrange
		expectedCredential := suite.createCredential()

		// act
		c, err := suite.credentialStore.ReadCredentialByID(
			context.Background(),
			expectedCredential.CredentialID,
		)

		// assert
		suite.NoError(err)
		suite.NotNil(c)
		suite.Equal(expectedCredential.Name, c.Name)
		suite.Equal(expectedCredential.Username, c.Username)
		suite.Equal(expectedCredential.SecretHash, c.SecretHash)
	})
	suite.Run("failure - credential not found", func() {
		// arrange
		var id int64 = 43241

		// act
		c, err := suite.credentialStore.ReadCredentialByID(context.Background(), id)

		// assert
		suite.Error(err)
		suite.True(errors.Is(err, sql.ErrNoRows))
		suite.Nil(c)
	})
}

func (suite *credentialSQLiteStoreSuite) TestCredentialSQLiteStore_ReadCredentialByName() {
	suite.Run("success - credential found by script identifier", func() {
		// arrange
		expectedCredential := suite.createCredential()

		// act
		c, err := suite.credentialStore.ReadCredentialByName(
			context.Background(),
			expectedCredential.Name,
		)

		// assert
		suite.NoError(err)
		suite.NotNil(c)
		suite.Equal(expectedCredential.CredentialID, c.CredentialID)
	})
	suite.Run("failure - unknown name", func() {
		// act
		c, err := suite.credentialStore.ReadCredentialByName(
			context.Background(),
			"no-such-credential",
		)

		// assert
		suite.Error(err)
		suite.True(errors.Is(err, sql.ErrNoRows))
		suite.Nil(c)
	})
}

func (suite *credentialSQLiteStoreSuite) TestCredentialSQLiteStore_UpdateCredential() {
	suite.Run("success - credential updates", func() {
		// arrange
		credential := suite.createCredential()
		name := fmt.Sprintf("updated%d", time.Now().UTC().UnixNano())
		username := "updated username"
		description := "updated description"

		// act
		updateErr := suite.credentialStore.UpdateCredential(
			context.Background(),
			credential.CredentialID,
			name,
			username,
			description,
		)
		c, readErr := suite.credentialStore.ReadCredentialByID(
			context.Background(),
			credential.CredentialID,
		)

		// assert
		suite.NoError(updateErr)
		suite.NoError(readErr)
		suite.Equal(name, c.Name)
		suite.Equal(username, c.Username)
		suite.Equal(description, c.Description)
		suite.Equal(credential.SecretHash, c.SecretHash)
	})
}

func (suite *credentialSQLiteStoreSuite) TestCredentialSQLiteStore_DeleteCredential() {
	suite.Run("success - credential is deleted", func() {
		// arrange
		expectedCredential := suite.createCredential()

		// act
		deleteErr := suite.credentialStore.DeleteCredential(
			context.Background(),
			expectedCredential.CredentialID,
		)
		c, readErr := suite.credentialStore.ReadCredentialByID(
			context.Background(),
			expectedCredential.CredentialID,
		)

		// assert
		suite.NoError(deleteErr)
		suite.Error(readErr)
		suite.Nil(c)
	})
}

func (suite *credentialSQLiteStoreSuite) TestCredentialSQLiteStore_ListCredentials() {
	suite.Run("success - credentials found", func() {
		// arrange
		expectedCredential := suite.createCredential()

		// act
		credentials, err := suite.credentialStore.ListCredentials(context.Background())

		// assert
		suite.NoError(err)
		suite.True(len(credentials) >= 1)
		suite.True(slices.ContainsFunc(credentials, func(c *Credential) bool {
			return c.CredentialID == expectedCredential.CredentialID
		}))
		suite.True(slices.IsSortedFunc(credentials, func(a, b *Credential) int {
			return strings.Compare(a.Name, b.Name)
		}))
	})
}

func (suite *credentialSQLiteStoreSuite) createCredential() *Credential {
	c, err := suite.credentialStore.CreateCredential(
		context.Background(),
		fmt.Sprintf("credential%d", time.Now().UTC().UnixNano()),
		fmt.Sprintf("user%d", time.Now().UTC().UnixNano()),
		"description",
		"hash",
	)
	suite.NoError(err)
	return c
}
