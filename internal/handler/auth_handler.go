package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/campushq/library-api/internal/models"
	"github.com/campushq/library-api/internal/service"
	appErrors "github.com/campushq/library-api/pkg/errors"
	"github.com/campushq/library-api/pkg/response"
)

// AuthHandler exposes authentication endpoints.
type AuthHandler struct {
	auth *service.AuthService
}

// NewAuthHandler constructs AuthHandler.
func NewAuthHandler(auth *service.AuthService) *AuthHandler {
	return &AuthHandler{auth: auth}
}

// Login godoc
// @Summary Authenticate with email and password
// @Tags Auth
// @Accept json
// @Produce json
// @Param payload body models.LoginRequest true "Credentials"
// @Success 200 {object} response.Envelope
// @Router /auth/login [post]
func (h *AuthHandler) Login(c *gin.Context) {
	var req models.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	req.IP = c.ClientIP()
	req.UserAgent = c.Request.UserAgent()

	resp, err := h.auth.Login(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, resp, nil)
}

// Refresh godoc
// @Summary Exchange a refresh token for new tokens
// @Tags Auth
// @Accept json
// @Produce json
// @Param payload body models.RefreshTokenRequest true "Refresh token"
// @Success 200 {object} response.Envelope
// @Router /auth/refresh [post]
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req models.RefreshTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	req.IP = c.ClientIP()
	req.UserAgent = c.Request.UserAgent()

	resp, err := h.auth.RefreshToken(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, resp, nil)
}

// Logout godoc
// @Summary Revoke the current refresh token
// @Tags Auth
// @Accept json
// @Produce json
// @Param payload body models.RefreshTokenRequest true "Refresh token"
// @Success 204
// @Router /auth/logout [post]
func (h *AuthHandler) Logout(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req models.RefreshTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	if err := h.auth.Logout(c.Request.Context(), req.RefreshToken, claims.UserID); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Me godoc
// @Summary Current authenticated identity
// @Tags Auth
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /auth/me [get]
func (h *AuthHandler) Me(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	info := models.UserInfo{
		ID:        claims.UserID,
		Email:     claims.Email,
		Role:      claims.Role,
		StudentID: claims.StudentID,
	}
	response.JSON(c, http.StatusOK, info, nil)
}
