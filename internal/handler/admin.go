package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/class-seat-booking/internal/middleware"
	"github.com/iliyamo/class-seat-booking/internal/utils"
)

// AdminHandler issues access tokens for operators (ADMIN) and for peer
// services calling the seat ledger endpoints (SERVICE).  There are no user
// accounts: whoever knows the shared secret, whose bcrypt hash is
// configured, may obtain a token.
type AdminHandler struct {
	JWTSecret  string
	SecretHash string
	TTL        time.Duration
	Logger     *zap.Logger
}

// NewAdminHandler constructs an AdminHandler.
func NewAdminHandler(jwtSecret, secretHash string, ttl time.Duration, logger *zap.Logger) *AdminHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AdminHandler{JWTSecret: jwtSecret, SecretHash: secretHash, TTL: ttl, Logger: logger}
}

type tokenRequest struct {
	Secret  string `json:"secret"`
	Role    string `json:"role"`
	Subject string `json:"subject"`
}

// IssueToken handles POST /v1/admin/token.  The body carries the shared
// secret, the requested role (ADMIN or SERVICE, default ADMIN) and an
// optional subject naming the caller.  It answers 401 for a wrong secret
// and 503 when no secret hash is configured.
func (h *AdminHandler) IssueToken(c echo.Context) error {
	if h.SecretHash == "" {
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "token issuing is disabled"})
	}
	var req tokenRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	role := strings.ToUpper(strings.TrimSpace(req.Role))
	if role == "" {
		role = middleware.RoleAdmin
	}
	if role != middleware.RoleAdmin && role != middleware.RoleService {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "role must be ADMIN or SERVICE"})
	}
	if !utils.VerifyPassword(h.SecretHash, req.Secret) {
		h.Logger.Warn("token request with wrong secret", zap.String("remote_ip", c.RealIP()))
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid secret"})
	}
	subject := strings.TrimSpace(req.Subject)
	if subject == "" {
		subject = strings.ToLower(role)
	}

	at, err := utils.NewAccessToken(h.JWTSecret, subject, role, h.TTL)
	if err != nil {
		h.Logger.Error("signing access token failed", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
	}
	return c.JSON(http.StatusOK, echo.Map{
		"access_token": at.Token,
		"token_type":   "Bearer",
		"expires_at":   at.Exp,
		"role":         role,
	})
}
