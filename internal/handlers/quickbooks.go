package handlers

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-authgate/qbgate/internal/models"
	"github.com/go-authgate/qbgate/internal/services"
	"github.com/go-authgate/qbgate/internal/templates"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Request headers read by the /qb endpoints.
const (
	HeaderRefreshToken = "refresh_token"
	HeaderEmail        = "email"
	HeaderCompany      = "company"
)

// QuickBooksHandler serves the operator-facing token endpoints and the
// customer reads that depend on the shared token.
type QuickBooksHandler struct {
	tokens    *services.TokenService
	customers *services.CustomerService
	logger    *zap.Logger
}

func NewQuickBooksHandler(
	tokens *services.TokenService,
	customers *services.CustomerService,
	logger *zap.Logger,
) *QuickBooksHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QuickBooksHandler{
		tokens:    tokens,
		customers: customers,
		logger:    logger.Named("handlers"),
	}
}

// AuthRequest returns the consent URL, or redirects to it with ?redirect=true.
func (h *QuickBooksHandler) AuthRequest(c *gin.Context) {
	authURL, err := h.tokens.AuthorizationURL(c.Request.Context())
	if err != nil {
		h.logger.Error("failed to build authorization url", zap.Error(err))
		RespondError(c, err)
		return
	}

	if c.Query("redirect") == "true" {
		c.Redirect(http.StatusFound, authURL)
		return
	}
	c.Header("Cache-Control", "no-store")
	c.JSON(http.StatusOK, gin.H{"authUrl": authURL})
}

// AuthToken is the OAuth redirect target.
func (h *QuickBooksHandler) AuthToken(c *gin.Context) {
	rec, err := h.tokens.CompleteAuthorization(c.Request.Context(), services.CallbackParams{
		Code:             c.Query("code"),
		State:            c.Query("state"),
		RealmID:          c.Query("realmId"),
		Error:            c.Query("error"),
		ErrorDescription: c.Query("error_description"),
	})
	if err != nil {
		status := services.HTTPStatus(err)
		templates.RenderTempl(c, status, templates.ErrorPage(templates.ErrorPageProps{
			Error:   services.Kind(err),
			Message: publicMessage(status, err),
		}))
		return
	}

	templates.RenderTempl(c, http.StatusOK, templates.TokenIssuedPage(templates.TokenIssuedProps{
		RealmID:   rec.RealmID,
		ExpiresAt: time.UnixMilli(rec.ExpiresTime).UTC().Format(time.RFC3339),
	}))
}

// RefreshToken forces a refresh with the refresh_token header, or with the
// stored refresh token when the header is absent, and returns the record.
func (h *QuickBooksHandler) RefreshToken(c *gin.Context) {
	rec, err := h.tokens.ForceRefresh(c.Request.Context(), c.GetHeader(HeaderRefreshToken))
	if err != nil {
		RespondError(c, err)
		return
	}
	c.Header("Cache-Control", "no-store")
	c.JSON(http.StatusOK, rec)
}

type validateTokenRequest struct {
	Token *models.TokenRecord `json:"token"`
}

// ValidateToken reports the validity of the posted token, or of the stored
// one when the body is empty.
func (h *QuickBooksHandler) ValidateToken(c *gin.Context) {
	var req validateTokenRequest
	err := c.ShouldBindJSON(&req)
	switch {
	case errors.Is(err, io.EOF):
	case err != nil:
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   services.KindInvalidRequest,
			"message": "Request body must be {\"token\": {...}}",
		})
		return
	}

	if req.Token != nil {
		c.JSON(http.StatusOK, h.tokens.Validate(req.Token))
		return
	}

	status, err := h.tokens.Status(c.Request.Context())
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, status.TokenState)
}

// TokenStatus returns validity and timestamps of the stored token.
func (h *QuickBooksHandler) TokenStatus(c *gin.Context) {
	status, err := h.tokens.Status(c.Request.Context())
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

// GetUpdates returns customers changed since the last sync.
func (h *QuickBooksHandler) GetUpdates(c *gin.Context) {
	updates, err := h.customers.GetUpdates(c.Request.Context(), c.GetHeader(HeaderCompany))
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, updates)
}

// CustomerByEmail looks customers up by primary email address.
func (h *QuickBooksHandler) CustomerByEmail(c *gin.Context) {
	customers, err := h.customers.FindByEmail(
		c.Request.Context(),
		c.GetHeader(HeaderEmail),
		c.GetHeader(HeaderCompany),
	)
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"customers": customers})
}

// Revoke revokes the stored refresh token at Intuit.
func (h *QuickBooksHandler) Revoke(c *gin.Context) {
	if err := h.tokens.Revoke(c.Request.Context()); err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"revoked": true})
}
