package middleware

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/EmbraceSQL/embracesql/pkg/auth"
)

// ContextKeyToken is where verified token claims are kept on the gin context.
const ContextKeyToken = "embracesql.token"

// BearerToken verifies an Authorization: Bearer token when one is sent.
// Verification is not mandatory: a missing or invalid token just leaves the
// request anonymous, authorization decides what anonymous may do.
func BearerToken(verifier *auth.Verifier, logger *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, ok := auth.ParseBearer(c.GetHeader("Authorization"))
		if !ok || !verifier.Enabled() {
			c.Next()
			return
		}

		claims, err := verifier.Verify(tokenString)
		if err != nil {
			logger.Debugw("ignoring invalid token", "path", c.Request.URL.Path, "error", err)
			c.Next()
			return
		}

		c.Set(ContextKeyToken, claims)
		c.Next()
	}
}

// Token returns the verified claims of the request, nil when anonymous.
func Token(c *gin.Context) map[string]any {
	if claims, ok := c.Get(ContextKeyToken); ok {
		if token, ok := claims.(map[string]any); ok {
			return token
		}
	}
	return nil
}
