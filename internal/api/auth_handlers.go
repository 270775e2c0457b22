package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"agrimarket-backend/internal/middleware"
	"agrimarket-backend/internal/models"
	"agrimarket-backend/internal/services"
	"agrimarket-backend/internal/utils"
)

// AuthHandlers serves registration and session endpoints
type AuthHandlers struct {
	userService *services.UserService
	authService *services.AuthService
}

// NewAuthHandlers creates new auth handlers
func NewAuthHandlers(userService *services.UserService, authService *services.AuthService) *AuthHandlers {
	return &AuthHandlers{
		userService: userService,
		authService: authService,
	}
}

// TokenResponse is returned by the token endpoint
type TokenResponse struct {
	*services.Session
	User *models.User `json:"user"`
}

// Register handles user registration
func (h *AuthHandlers) Register(c *gin.Context) {
	var req models.UserRegistration
	if !bindJSON(c, &req) {
		return
	}

	user, err := h.userService.Register(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	respondData(c, http.StatusCreated, user)
}

// Token exchanges a username and password for a bearer session. It accepts
// a JSON body or an OAuth2 password-grant form.
func (h *AuthHandlers) Token(c *gin.Context) {
	var req models.UserLogin
	if err := c.ShouldBind(&req); err != nil {
		respondError(c, &services.Error{Kind: services.KindValidation, Code: errInvalidBody.Code, Message: errInvalidBody.Message, Err: err})
		return
	}
	if err := utils.ValidateStruct(&req); err != nil {
		respondError(c, &services.Error{Kind: services.KindValidation, Code: "validation_error", Message: "validation error", Err: err})
		return
	}

	user, err := h.userService.Authenticate(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		respondError(c, err)
		return
	}

	session, err := h.authService.IssueSession(user.Username, user.Role)
	if err != nil {
		respondError(c, err)
		return
	}

	respondData(c, http.StatusOK, TokenResponse{Session: session, User: user})
}

// Logout revokes the caller's current session
func (h *AuthHandlers) Logout(c *gin.Context) {
	token := c.GetString(middleware.TokenKey)
	if err := h.authService.RevokeSession(c.Request.Context(), token); err != nil {
		respondError(c, err)
		return
	}

	respondData(c, http.StatusOK, gin.H{"message": "Logged out successfully"})
}

// Me returns the authenticated caller
func (h *AuthHandlers) Me(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	respondData(c, http.StatusOK, user)
}
