package demoserver

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"wallet-core/internal/demoserver/models"
	"wallet-core/internal/demoserver/store"
)

const userContextKey = "demoserver.user"

// RequireAuth validates the bearer token on protected routes and attaches
// the resolved user to the request context.
func RequireAuth(st store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token := strings.TrimPrefix(header, "Bearer ")
		if token == "" || token == header {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Missing bearer token"})
			return
		}

		session, err := st.SessionByToken(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid session"})
			return
		}
		if session.IsExpired() {
			_ = st.DeleteSession(session.ID)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Session expired"})
			return
		}

		user, err := st.UserByID(session.UserID)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unknown user"})
			return
		}

		c.Set(userContextKey, user)
		c.Next()
	}
}

// currentUser returns the user RequireAuth attached to the context. Only
// valid on routes behind RequireAuth.
func currentUser(c *gin.Context) *models.User {
	return c.MustGet(userContextKey).(*models.User)
}
