package http

import (
	"omnicast/internal/core/domain"

	"github.com/gin-gonic/gin"
)

// currentUser rebuilds the acting user from the claims the auth middleware
// stored in the request context.
func currentUser(c *gin.Context) (*domain.User, bool) {
	userIDVal, exists := c.Get("user_id")
	if !exists {
		return nil, false
	}
	userID, ok := userIDVal.(domain.UserID)
	if !ok {
		return nil, false
	}

	user := &domain.User{ID: userID, Plan: domain.PlanFree}

	if username, exists := c.Get("username"); exists {
		if name, ok := username.(string); ok {
			user.Username = name
		}
	}
	if planVal, exists := c.Get("plan"); exists {
		if plan, ok := planVal.(domain.Plan); ok && plan != "" {
			user.Plan = plan
		}
	}

	return user, true
}
