package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"rental/internal/domain"
	"rental/internal/repository"
)

// UserHandler handles HTTP requests about the caller.
type UserHandler struct {
	users repository.VehicleDirectory
}

// NewUserHandler creates a new UserHandler.
func NewUserHandler(users repository.VehicleDirectory) *UserHandler {
	return &UserHandler{users: users}
}

// UserResponse is the HTTP response for the caller's profile.
type UserResponse struct {
	ID       string   `json:"id"`
	Role     string   `json:"role"`
	Name     string   `json:"name,omitempty"`
	Email    string   `json:"email,omitempty"`
	StoreIDs []string `json:"store_ids,omitempty"`
}

// Me handles GET /v1/me
func (h *UserHandler) Me(c *gin.Context) {
	p := principal(c)

	u, err := h.users.GetUser(c.Request.Context(), p.UserID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		respondError(c, err)
		return
	}

	// Tokens may be issued before the directory catches up.
	respondJSON(c, http.StatusOK, toUserResponse(p, u))
}

func toUserResponse(p domain.Principal, u *domain.User) UserResponse {
	resp := UserResponse{ID: p.UserID, Role: string(p.Role), StoreIDs: p.StoreIDs}
	if u != nil {
		resp.Name = u.Name
		resp.Email = u.Email
	}
	return resp
}
