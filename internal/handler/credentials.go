package handler

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"strings"

	"github.com/imshubhamkaushik/deploypipe/internal/store"
	"github.com/labstack/echo/v4"
)

func SetupCredentialRoutes(g *echo.Group, credentialService CredentialServicer) {
	h := NewCredentialHandler(credentialService)
	credentialsGroup := g.Group("/credentials")
	credentialsGroup.GET("", h.GetCredentials)
	credentialsGroup.POST("", h.PostCredentials)
	credentialsGroup.GET("/:credential_id", h.GetCredential)
	credentialsGroup.PATCH("/:credential_id", h.PatchCredential)
	credentialsGroup.DELETE("/:credential_id", h.DeleteCredential)
}

type CredentialWriter interface {
	CreateCredential(
		ctx context.Context,
		name, username, description, secret string,
	) (*store.Credential, error)
	UpdateCredential(ctx context.Context, id int64, name, username, description string) error
	DeleteCredential(ctx context.Context, id int64) error
}

type CredentialReader interface {
	GetCredentialByID(ctx context.Context, id int64) (*store.Credential, error)
	ListCredentials(ctx context.Context) ([]*store.Credential, error)
}

type CredentialServicer interface {
	CredentialWriter
	CredentialReader
}

type CredentialHandler struct {
	credentialService CredentialServicer
}

func NewCredentialHandler(credentialService CredentialServicer) *CredentialHandler {
	return &CredentialHandler{credentialService}
}

// credentialResponse never carries the stored secret in any form.
type credentialResponse struct {
	CredentialID int64  `json:"credential_id"`
	Name         string `json:"name"`
	Username     string `json:"username"`
	Description  string `json:"description"`
}

func toCredentialResponse(c *store.Credential) credentialResponse {
	return credentialResponse{
		CredentialID: c.CredentialID,
		Name:         c.Name,
		Username:     c.Username,
		Description:  c.Description,
	}
}

func (h *CredentialHandler) GetCredentials(c echo.Context) error {
	credentials, err := h.credentialService.ListCredentials(c.Request().Context())
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return newError(err,
			http.StatusInternalServerError,
			"something went wrong while listing credentials",
		)
	}
	out := make([]credentialResponse, 0, len(credentials))
	for _, cr := range credentials {
		out = append(out, toCredentialResponse(cr))
	}
	return c.JSON(http.StatusOK, out)
}

func (h *CredentialHandler) GetCredential(c echo.Context) error {
	cp := new(CredentialParams)
	if err := c.Bind(cp); err != nil {
		return newError(err, http.StatusBadRequest, "invalid credential data")
	}

	credential, err := h.credentialService.GetCredentialByID(
		c.Request().Context(), cp.CredentialID,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return newError(err, http.StatusNotFound, "credential was not found")
		}
		return newError(err,
			http.StatusInternalServerError,
			"something went wrong while getting credential data",
		)
	}

	return c.JSON(http.StatusOK, toCredentialResponse(credential))
}

func (h *CredentialHandler) PostCredentials(c echo.Context) error {
	cp := new(CredentialParams)
	if err := c.Bind(cp); err != nil {
		return newError(err, http.StatusBadRequest, "invalid credential data")
	}

	secret := cp.Secret
	if secret == "" {
		secret = cp.SSHPrivateKey
	}
	if cp.Name == "" || secret == "" {
		return newError(nil, http.StatusBadRequest, "credential name and secret are required")
	}

	credential, err := h.credentialService.CreateCredential(
		c.Request().Context(), cp.Name, cp.Username, cp.Description, secret,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return newError(err, http.StatusConflict,
				"a credential with the name "+cp.Name+" already exists",
			)
		}
		return newError(err,
			http.StatusInternalServerError,
			"something went wrong when creating new credentials",
		)
	}

	return c.JSON(http.StatusCreated, toCredentialResponse(credential))
}

func (h *CredentialHandler) PatchCredential(c echo.Context) error {
	cp := new(CredentialParams)
	if err := c.Bind(cp); err != nil {
		return newError(err, http.StatusBadRequest, "invalid credential data")
	}

	cp.Name = strings.TrimSpace(cp.Name)
	cp.Username = strings.TrimSpace(cp.Username)

	if err := h.credentialService.UpdateCredential(
		c.Request().Context(), cp.CredentialID, cp.Name, cp.Username, cp.Description,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return newError(err, http.StatusNotFound, "credential was not found")
		}
		return newError(err,
			http.StatusInternalServerError, "unable to update credential",
		)
	}

	return c.NoContent(http.StatusNoContent)
}

func (h *CredentialHandler) DeleteCredential(c echo.Context) error {
	cp := new(CredentialParams)
	if err := c.Bind(cp); err != nil {
		return newError(err, http.StatusBadRequest, "invalid credential data")
	}

	if err := h.credentialService.DeleteCredential(
		c.Request().Context(), cp.CredentialID,
	); err != nil {
		if isForeignKeyConstraintError(err) {
			return newError(err, http.StatusConflict,
				"credential is in use by an agent",
			)
		}
		return newError(err,
			http.StatusInternalServerError, "unable to delete credential",
		)
	}

	return c.NoContent(http.StatusNoContent)
}
