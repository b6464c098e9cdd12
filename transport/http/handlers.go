package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/layer-3/walletauth/core"
	"github.com/layer-3/walletauth/service"
)

// SessionCookie is the cookie carrying the access token on successful login.
const SessionCookie = "wa_session"

// AuthHandlers contains HTTP handlers for auth endpoints.
type AuthHandlers struct {
	authService *service.AuthService
}

// NewAuthHandlers creates new auth handlers.
func NewAuthHandlers(authService *service.AuthService) *AuthHandlers {
	return &AuthHandlers{authService: authService}
}

// Nonce handles the challenge issuance request.
func (h *AuthHandlers) Nonce(c *gin.Context) {
	nonce, err := h.authService.IssueNonce(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to issue nonce"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"nonce":      nonce.Value,
		"issued_at":  nonce.IssuedAt.UTC().Format(time.RFC3339),
		"expires_at": nonce.ExpiresAt.UTC().Format(time.RFC3339),
		"domain":     h.authService.Domain(),
	})
}

// Login handles the login request.
func (h *AuthHandlers) Login(c *gin.Context) {
	var req struct {
		Message   string `json:"message" binding:"required"`
		Signature string `json:"signature" binding:"required"`
		Address   string `json:"walletAddress" binding:"required"`
		ChainID   int64  `json:"chainId" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	result, err := h.authService.Login(c.Request.Context(), service.LoginInput{
		Message:   req.Message,
		Signature: req.Signature,
		Address:   req.Address,
		ChainID:   req.ChainID,
		IP:        c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	})
	if err != nil {
		status, msg := loginErrorResponse(err)
		c.JSON(status, gin.H{"error": msg})
		return
	}

	expiresIn := int(h.authService.AccessTTL().Seconds())

	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(SessionCookie, result.AccessToken, expiresIn, "/", "", true, true)

	c.JSON(http.StatusOK, gin.H{
		"identity": gin.H{
			"id":           result.Identity.ID,
			"address":      result.Identity.Address,
			"display_name": result.Identity.DisplayName,
		},
		"access_token":  result.AccessToken,
		"refresh_token": result.RefreshToken,
		"token_type":    "Bearer",
		"expires_in":    expiresIn,
	})
}

// loginErrorResponse maps a login failure to a status code and a message
// deliberately too generic to tell an attacker which guard fired inside a
// class. Detailed reasons live only in the audit trail.
func loginErrorResponse(err error) (int, string) {
	switch {
	case errors.Is(err, core.ErrMalformedRequest):
		return http.StatusBadRequest, "Invalid request"
	case errors.Is(err, core.ErrMalformedMessage):
		return http.StatusBadRequest, "Invalid login message"
	case errors.Is(err, core.ErrNonceNotFound),
		errors.Is(err, core.ErrNonceExpired),
		errors.Is(err, core.ErrNonceUsed):
		return http.StatusUnauthorized, "Invalid or expired challenge"
	case errors.Is(err, core.ErrStaleTimestamp):
		return http.StatusUnauthorized, "Message timestamp out of range"
	case errors.Is(err, core.ErrDomainMismatch):
		return http.StatusUnauthorized, "Message not intended for this host"
	case errors.Is(err, core.ErrChainMismatch):
		return http.StatusUnauthorized, "Message not intended for this chain"
	case errors.Is(err, core.ErrWalletNotVerifiable):
		return http.StatusUnauthorized, "Wallet cannot be verified"
	case errors.Is(err, core.ErrInvalidSignature):
		return http.StatusUnauthorized, "Invalid signature"
	default:
		return http.StatusInternalServerError, "Authentication failed"
	}
}

// Refresh handles token refresh.
func (h *AuthHandlers) Refresh(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	accessToken, refreshToken, err := h.authService.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		statusCode := http.StatusInternalServerError
		errorMsg := "Failed to refresh tokens"

		switch {
		case errors.Is(err, core.ErrTokenExpired):
			statusCode = http.StatusUnauthorized
			errorMsg = "Refresh token expired"
		case errors.Is(err, core.ErrTokenInvalidated):
			statusCode = http.StatusUnauthorized
			errorMsg = "Refresh token has been invalidated"
		case errors.Is(err, core.ErrInvalidToken):
			statusCode = http.StatusBadRequest
			errorMsg = "Invalid refresh token"
		}

		c.JSON(statusCode, gin.H{"error": errorMsg})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"access_token":  accessToken,
		"refresh_token": refreshToken,
		"token_type":    "Bearer",
		"expires_in":    int(h.authService.AccessTTL().Seconds()),
	})
}

// Logout handles session logout.
func (h *AuthHandlers) Logout(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	if err := h.authService.Logout(c.Request.Context(), req.RefreshToken); err != nil {
		if errors.Is(err, core.ErrTokenExpired) {
			// Even if expired, we'll consider logout successful.
			c.JSON(http.StatusOK, gin.H{"message": "Logged out"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid refresh token"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Logged out"})
}

// Me returns information about the authenticated user.
func (h *AuthHandlers) Me(c *gin.Context) {
	address, exists := c.Get("userAddress")
	if !exists {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "User not found in context"})
		return
	}
	identityID, _ := c.Get("identityID")

	c.JSON(http.StatusOK, gin.H{
		"address":     address,
		"identity_id": identityID,
	})
}

// Authorize checks if a user is authorized.
func (h *AuthHandlers) Authorize(c *gin.Context) {
	// Reaching this handler means the auth middleware already validated the
	// token.
	address, exists := c.Get("userAddress")
	if !exists {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "User not found in context"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"authorized": true,
		"address":    address,
	})
}
