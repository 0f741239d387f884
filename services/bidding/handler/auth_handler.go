package handler

import (
	"net/http"

	auth "auction-house/internal/authService"
	model "auction-house/internal/models"
	"auction-house/services/bidding/helpers"
	"auction-house/utils"

	"github.com/gin-gonic/gin"
)

type AuthHandler struct {
	service AuthServiceInterface
}

func NewAuthHandler(service AuthServiceInterface) *AuthHandler {
	return &AuthHandler{service: service}
}

// RegisterHandler handles POST /auth/register
func (h *AuthHandler) RegisterHandler(c *gin.Context) {
	var req helpers.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.HandleBindError(c, "RegisterHandler", err)
		return
	}

	session, err := h.service.Register(c.Request.Context(), auth.RegisterInput{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
		Role:     model.Role(req.Role),
	})
	if err != nil {
		helpers.RespondError(c, "RegisterHandler", err, map[string]any{"role": req.Role})
		return
	}

	utils.JSONResponse(c, http.StatusCreated, sessionResponse(session), "user registered successfully")
	helpers.LogSuccess("RegisterHandler", "user registered successfully", map[string]any{
		"user_id": session.User.ID,
		"role":    string(session.User.Role),
	})
}

// LoginHandler handles POST /auth/login
func (h *AuthHandler) LoginHandler(c *gin.Context) {
	var req helpers.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.HandleBindError(c, "LoginHandler", err)
		return
	}

	session, err := h.service.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		helpers.RespondError(c, "LoginHandler", err, nil)
		return
	}

	utils.JSONResponse(c, http.StatusOK, sessionResponse(session), "login successful")
	helpers.LogSuccess("LoginHandler", "login successful", map[string]any{"user_id": session.User.ID})
}

// GetProfileHandler handles GET /users/profile
func (h *AuthHandler) GetProfileHandler(c *gin.Context) {
	userID, _ := helpers.CurrentUser(c)
	user, err := h.service.Profile(c.Request.Context(), userID)
	if err != nil {
		helpers.RespondError(c, "GetProfileHandler", err, map[string]any{"user_id": userID})
		return
	}

	utils.JSONResponse(c, http.StatusOK, helpers.NewUserResponse(user), "profile retrieved successfully")
}

// UpdateProfileHandler handles PUT /users/profile
func (h *AuthHandler) UpdateProfileHandler(c *gin.Context) {
	userID, _ := helpers.CurrentUser(c)

	var req helpers.UpdateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.HandleBindError(c, "UpdateProfileHandler", err)
		return
	}

	session, err := h.service.UpdateProfile(c.Request.Context(), userID, auth.ProfileUpdate{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		helpers.RespondError(c, "UpdateProfileHandler", err, map[string]any{"user_id": userID})
		return
	}

	utils.JSONResponse(c, http.StatusOK, sessionResponse(session), "profile updated successfully")
	helpers.LogSuccess("UpdateProfileHandler", "profile updated successfully", map[string]any{"user_id": userID})
}

// ListUsersHandler handles GET /users
func (h *AuthHandler) ListUsersHandler(c *gin.Context) {
	users, err := h.service.ListUsers(c.Request.Context())
	if err != nil {
		helpers.RespondError(c, "ListUsersHandler", err, nil)
		return
	}

	utils.JSONResponse(c, http.StatusOK, helpers.NewUserResponses(users), "users retrieved successfully")
}

func sessionResponse(s auth.Session) helpers.SessionResponse {
	return helpers.SessionResponse{Token: s.Token, User: helpers.NewUserResponse(s.User)}
}
