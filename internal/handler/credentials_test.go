package handler

import (
	"encoding/json"
	"errors"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/imshubhamkaushik/deploypipe/internal/store"
	"github.com/imshubhamkaushik/deploypipe/internal/testutil"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
)

func TestCredentialHandler_GetCredentials(t *testing.T) {
	t.Run("success - credentials listed without secrets", func(t *testing.T) {
		// arrange
		credential := generateCredential()
		mockService := new(testutil.MockCredentialService)
		e := echo.New()
		req := httptest.NewRequest(http.MethodGet, "/api/credentials", nil)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)
		mockService.On("ListCredentials", c.Request().Context()).
			Return([]*store.Credential{credential}, nil)
		h := NewCredentialHandler(mockService)

		// act
		err := h.GetCredentials(c)

		// assert
		assert.NoError(t, err)
		assert.Equal(t, http.StatusOK, rec.Code)
		body := rec.Body.String()
		assert.Contains(t, body, credential.Name)
		assert.NotContains(t, body, credential.SecretHash)

		var out []credentialResponse
		assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
		assert.Len(t, out, 1)
		assert.Equal(t, credential.CredentialID, out[0].CredentialID)
	})
}

func TestCredentialHandler_PostCredentials(t *testing.T) {
	t.Run("success - credential created", func(t *testing.T) {
		// arrange
		credential := generateCredential()
		mockService := new(testutil.MockCredentialService)
		e := echo.New()
		body := `{
			"name": "` + credential.Name + `",
			"username": "` + credential.Username + `",
			"description": "` + credential.Description + `",
			"secret": "hunter2"
		}`
		req := httptest.NewRequest(http.MethodPost, "/api/credentials", strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)
		mockService.On(
			"CreateCredential",
			c.Request().Context(),
			credential.Name,
			credential.Username,
			credential.Description,
			"hunter2",
		).Return(credential, nil)
		h := NewCredentialHandler(mockService)

		// act
		err := h.PostCredentials(c)

		// assert
		assert.NoError(t, err)
		assert.Equal(t, http.StatusCreated, rec.Code)
		assert.NotContains(t, rec.Body.String(), "hunter2")
	})
	t.Run("success - ssh private key accepted as the secret", func(t *testing.T) {
		// arrange
		credential := generateCredential()
		mockService := new(testutil.MockCredentialService)
		e := echo.New()
		body := `{"name": "` + credential.Name + `", "ssh_private_key": "key material"}`
		req := httptest.NewRequest(http.MethodPost, "/api/credentials", strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)
		mockService.On(
			"CreateCredential", c.Request().Context(), credential.Name, "", "", "key material",
		).Return(credential, nil)
		h := NewCredentialHandler(mockService)

		// act
		err := h.PostCredentials(c)

		// assert
		assert.NoError(t, err)
		assert.Equal(t, http.StatusCreated, rec.Code)
	})
	t.Run("failure - name and secret are required", func(t *testing.T) {
		// arrange
		mockService := new(testutil.MockCredentialService)
		e := echo.New()
		req := httptest.NewRequest(
			http.MethodPost, "/api/credentials", strings.NewReader(`{"name": "x"}`),
		)
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)
		h := NewCredentialHandler(mockService)

		// act
		err := h.PostCredentials(c)

		// assert
		var httpErr *echo.HTTPError
		assert.ErrorAs(t, err, &httpErr)
		assert.Equal(t, http.StatusBadRequest, httpErr.Code)
		mockService.AssertNotCalled(t, "CreateCredential")
	})
	t.Run("failure - store error returns internal error", func(t *testing.T) {
		// arrange
		credential := generateCredential()
		mockService := new(testutil.MockCredentialService)
		e := echo.New()
		body := `{"name": "` + credential.Name + `", "secret": "hunter2"}`
		req := httptest.NewRequest(http.MethodPost, "/api/credentials", strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)
		mockService.On(
			"CreateCredential", c.Request().Context(), credential.Name, "", "", "hunter2",
		).Return(nil, errors.New("disk I/O error"))
		h := NewCredentialHandler(mockService)

		// act
		err := h.PostCredentials(c)

		// assert
		var httpErr *echo.HTTPError
		assert.ErrorAs(t, err, &httpErr)
		assert.Equal(t, http.StatusInternalServerError, httpErr.Code)
	})
}

func TestCredentialHandler_DeleteCredential(t *testing.T) {
	t.Run("success - credential deleted", func(t *testing.T) {
		// arrange
		credential := generateCredential()
		mockService := new(testutil.MockCredentialService)
		e := echo.New()
		req := httptest.NewRequest(http.MethodDelete, "/", nil)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)
		c.SetPath("/api/credentials/:credential_id")
		c.SetParamNames("credential_id")
		c.SetParamValues(strconv.FormatInt(credential.CredentialID, 10))
		mockService.On("DeleteCredential", c.Request().Context(), credential.CredentialID).
			Return(nil)
		h := NewCredentialHandler(mockService)

		// act
		err := h.DeleteCredential(c)

		// assert
		assert.NoError(t, err)
		assert.Equal(t, http.StatusNoContent, rec.Code)
	})
}

func generateCredential() *store.Credential {
	return &store.Credential{
		CredentialID: rand.Int63(),
		Name:         "registry-token",
		Username:     "deploy",
		Description:  "registry push access",
		SecretHash:   "deadbeefcafe",
	}
}
