package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/teachstack/livetest-backend/internal/middleware"
	"github.com/teachstack/livetest-backend/internal/model"
	"github.com/teachstack/livetest-backend/internal/repository"
	"github.com/teachstack/livetest-backend/internal/response"
	"github.com/teachstack/livetest-backend/internal/service"
	"github.com/teachstack/livetest-backend/internal/validator"
)

// AuthHandler handles teacher authentication endpoints.
type AuthHandler struct {
	authService *service.AuthService
	teachers    *repository.TeacherRepository
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(authService *service.AuthService, teachers *repository.TeacherRepository) *AuthHandler {
	return &AuthHandler{authService: authService, teachers: teachers}
}

// Login godoc
// POST /api/v1/auth/login
// Authenticates a teacher and issues a JWT.
func (h *AuthHandler) Login(c *gin.Context) {
	var req model.LoginRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	teacher, err := h.teachers.GetByEmail(c.Request.Context(), req.Email)
	if err != nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrInvalidCredentials)
		return
	}

	if err := h.authService.CheckPassword(teacher.PasswordHash, req.Password); err != nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrInvalidCredentials)
		return
	}

	token, err := h.authService.GenerateTeacherToken(c.Request.Context(), teacher.ID, teacher.Name)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"token": token,
		"teacher": gin.H{
			"id":    teacher.ID,
			"name":  teacher.Name,
			"email": teacher.Email,
		},
	})
}

// Me godoc
// GET /api/v1/auth/me
// Returns the authenticated teacher's profile.
func (h *AuthHandler) Me(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"teacher": gin.H{
			"id":   claims.TeacherID,
			"name": claims.Name,
		},
	})
}
