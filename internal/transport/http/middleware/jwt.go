package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"docchat/internal/pkg/jwtutil"
	"docchat/internal/transport/http/response"
)

const subjectKey = "docchat.subject"

var (
	errNoCredentials = errors.New("bearer token required")
	errBadScheme     = errors.New("authorization must use the Bearer scheme")
	errNoSubject     = errors.New("token has no subject")
)

// AuthJWT accepts requests carrying an HS256 token signed with secret, such
// as the ones the CLI mints, and records the token subject on the context.
func AuthJWT(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		subject, err := authenticate(c.GetHeader("Authorization"), secret)
		if err != nil {
			log.Debug().Err(err).Str("path", c.Request.URL.Path).Msg("request rejected")
			response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, err.Error())
			c.Abort()
			return
		}
		c.Set(subjectKey, subject)
		c.Next()
	}
}

// Subject is the authenticated caller, or "" when auth is disabled.
func Subject(c *gin.Context) string {
	return c.GetString(subjectKey)
}

func authenticate(header, secret string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errNoCredentials
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return "", errBadScheme
	}
	claims, err := jwtutil.ParseToken(secret, strings.TrimSpace(token))
	if err != nil {
		return "", jwtutil.ErrInvalidToken
	}
	if claims.Subject == "" {
		return "", errNoSubject
	}
	return claims.Subject, nil
}
