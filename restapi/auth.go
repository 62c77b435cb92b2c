package restapi

import (
	"fmt"
	log "log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	jwtverifier "github.com/okta/okta-jwt-verifier-golang"
)

type tokenVerifier interface {
	VerifyAccessToken(token string) (*jwtverifier.Jwt, error)
}

// Authenticator verifies the bearer token of incoming requests.
type Authenticator struct {
	verifier tokenVerifier
	devToken string
}

// NewAuthenticator returns an Authenticator for config, nil when no issuer is configured.
func NewAuthenticator(config AuthConfig) *Authenticator {
	if config.Issuer == "" {
		return nil
	}
	claims := map[string]string{}
	if config.Audience != "" {
		claims["aud"] = config.Audience
	}
	if config.ClientID != "" {
		claims["cid"] = config.ClientID
	}
	verifierSetup := jwtverifier.JwtVerifier{
		Issuer:           config.Issuer,
		ClaimsToValidate: claims,
	}
	return &Authenticator{
		verifier: verifierSetup.New(),
		devToken: config.DevToken,
	}
}

// Wrap returns h guarded by token verification. A nil Authenticator lets every request through.
func (a *Authenticator) Wrap(h func(c *gin.Context)) func(c *gin.Context) {
	if a == nil {
		return h
	}
	return func(c *gin.Context) {
		if a.verify(c) {
			h(c)
		}
	}
}

// Verify the bearer token in header, writing the rejection when it fails.
func (a *Authenticator) verify(c *gin.Context) bool {
	token := c.Request.Header.Get("Authorization")
	if !strings.HasPrefix(token, "Bearer ") {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"succeeded": false, "message": "Unauthorized", "status_code": http.StatusUnauthorized})
		return false
	}
	token = strings.TrimPrefix(token, "Bearer ")
	if a.devToken != "" && token == a.devToken {
		return true
	}
	if _, err := a.verifier.VerifyAccessToken(token); err != nil {
		log.Warn(fmt.Sprintf("bearer token rejected, details: %v", err))
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"succeeded": false, "message": err.Error(), "status_code": http.StatusForbidden})
		return false
	}
	return true
}
