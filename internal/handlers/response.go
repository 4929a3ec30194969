package handlers

import (
	"net/http"

	"github.com/go-authgate/qbgate/internal/services"

	"github.com/gin-gonic/gin"
)

// RespondError writes err as {error, message, authUrl?}. Token-dependent
// failures carry the re-authorization URL so an operator client can send a
// human to consent again.
func RespondError(c *gin.Context, err error) {
	status := services.HTTPStatus(err)
	body := gin.H{
		"error":   services.Kind(err),
		"message": publicMessage(status, err),
	}
	if authURL := services.AuthURL(err); authURL != "" {
		body["authUrl"] = authURL
	}
	c.Header("Cache-Control", "no-store")
	c.JSON(status, body)
}

// publicMessage hides internal detail on 5xx responses.
func publicMessage(status int, err error) string {
	if status < http.StatusInternalServerError {
		return err.Error()
	}
	switch services.Kind(err) {
	case services.KindMalformedResponse:
		return "QuickBooks returned an unexpected token response"
	case services.KindRefreshFailed:
		return "Failed to load or save the QuickBooks token"
	case services.KindExchangeFailed:
		return "Failed to exchange the authorization code"
	case services.KindUpstream:
		return "QuickBooks request failed"
	case services.KindRevokeFailed:
		return "Failed to revoke the QuickBooks token"
	default:
		return "Internal server error"
	}
}
