package handler

import (
	"net/http"

	"github.com/imshubhamkaushik/deploypipe/internal"
	"github.com/imshubhamkaushik/deploypipe/internal/settings"
	"github.com/labstack/echo/v4"
)

// APIKeyAuth guards the management API. The key travels in the
// X-DeployPipe-API-Key header and must either match the bootstrap
// admin key or exist in the api_keys table.
func APIKeyAuth(apiKeyService APIKeyServicer) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := c.Request().Header.Get(internal.APIKeyHeader)
			if key == "" {
				return newError(nil, http.StatusUnauthorized, "missing api key")
			}

			if settings.Settings != nil &&
				settings.Settings.AdminAPIKey != "" &&
				key == settings.Settings.AdminAPIKey {
				return next(c)
			}

			if _, err := apiKeyService.GetAPIKeyByValue(
				c.Request().Context(), key,
			); err != nil {
				return newError(err, http.StatusUnauthorized, "invalid api key")
			}
			return next(c)
		}
	}
}
