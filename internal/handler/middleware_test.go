package handler

import (
	"database/sql"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/imshubhamkaushik/deploypipe/internal"
	"github.com/imshubhamkaushik/deploypipe/internal/settings"
	"github.com/imshubhamkaushik/deploypipe/internal/store"
	"github.com/imshubhamkaushik/deploypipe/internal/testutil"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
)

func TestMiddleware_APIKeyAuth(t *testing.T) {
	prevSettings := settings.Settings
	defer func() { settings.Settings = prevSettings }()
	settings.Settings = &settings.AppSettings{AdminAPIKey: "admin-key"}

	t.Run("success - stored api key is accepted", func(t *testing.T) {
		// arrange
		mockService := new(testutil.MockAPIKeyService)
		req := httptest.NewRequest(http.MethodGet, "/api/pipelines", nil)
		req.Header.Set(internal.APIKeyHeader, "stored-key")
		rec := httptest.NewRecorder()
		e := echo.New()
		c := e.NewContext(req, rec)
		mockService.On("GetAPIKeyByValue", c.Request().Context(), "stored-key").
			Return(&store.APIKey{ID: 1, Value: "stored-key", CreatedOn: time.Now().UTC()}, nil)
		h := APIKeyAuth(mockService)(func(c echo.Context) error {
			return c.String(http.StatusOK, "authorized")
		})

		// act
		err := h(c)

		// assert
		assert.NoError(t, err)
		assert.Equal(t, "authorized", rec.Body.String())
	})
	t.Run("success - bootstrap admin key skips the key store", func(t *testing.T) {
		// arrange
		mockService := new(testutil.MockAPIKeyService)
		req := httptest.NewRequest(http.MethodGet, "/api/pipelines", nil)
		req.Header.Set(internal.APIKeyHeader, "admin-key")
		rec := httptest.NewRecorder()
		e := echo.New()
		c := e.NewContext(req, rec)
		h := APIKeyAuth(mockService)(func(c echo.Context) error {
			return c.String(http.StatusOK, "authorized")
		})

		// act
		err := h(c)

		// assert
		assert.NoError(t, err)
		assert.Equal(t, "authorized", rec.Body.String())
		mockService.AssertNotCalled(t, "GetAPIKeyByValue")
	})
	t.Run("failure - missing api key", func(t *testing.T) {
		// arrange
		mockService := new(testutil.MockAPIKeyService)
		req := httptest.NewRequest(http.MethodGet, "/api/pipelines", nil)
		rec := httptest.NewRecorder()
		e := echo.New()
		c := e.NewContext(req, rec)
		h := APIKeyAuth(mockService)(func(c echo.Context) error {
			return c.String(http.StatusOK, "authorized")
		})

		// act
		err := h(c)

		// assert
		var httpErr *echo.HTTPError
		assert.ErrorAs(t, err, &httpErr)
		assert.Equal(t, http.StatusUnauthorized, httpErr.Code)
	})
	t.Run("failure - unknown api key", func(t *testing.T) {
		// arrange
		mockService := new(testutil.MockAPIKeyService)
		req := httptest.NewRequest(http.MethodGet, "/api/pipelines", nil)
		req.Header.Set(internal.APIKeyHeader, "bogus")
		rec := httptest.NewRecorder()
		e := echo.New()
		c := e.NewContext(req, rec)
		mockService.On("GetAPIKeyByValue", c.Request().Context(), "bogus").
			Return(nil, sql.ErrNoRows)
		h := APIKeyAuth(mockService)(func(c echo.Context) error {
			return c.String(http.StatusOK, "authorized")
		})

		// act
		err := h(c)

		// assert
		var httpErr *echo.HTTPError
		assert.ErrorAs(t, err, &httpErr)
		assert.Equal(t, http.StatusUnauthorized, httpErr.Code)
	})
}
