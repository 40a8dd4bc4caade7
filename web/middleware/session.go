package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const SessionCookieName = "multimodal_rag_session"
const CookieMaxAge = 30 * 24 * 60 * 60 // 30 days

// SessionKey is the gin context key holding the request's session id.
const SessionKey = "sessionID"

// SessionMiddleware assigns every client a session id kept in a cookie.
// Missing or malformed cookies get a fresh id.
func SessionMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		cookie, err := c.Cookie(SessionCookieName)
		sessionID, parseErr := uuid.Parse(cookie)

		if err != nil || parseErr != nil {
			if err == nil {
				if logger, ok := c.Get("logger"); ok {
					logger.(*zap.Logger).Debug("Replacing malformed session cookie")
				}
			}
			sessionID = uuid.New()
			c.SetCookie(SessionCookieName, sessionID.String(), CookieMaxAge, "/", "", false, true)
		}

		c.Set(SessionKey, sessionID)
		c.Next()
	}
}

// SessionID returns the session id set by SessionMiddleware.
func SessionID(c *gin.Context) (uuid.UUID, bool) {
	v, ok := c.Get(SessionKey)
	if !ok {
		return uuid.Nil, false
	}
	id, ok := v.(uuid.UUID)
	return id, ok
}
