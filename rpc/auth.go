package rpc

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	jwt "github.com/golang-jwt/jwt/v5"

	"dscd/config"
)

// writeScope is the JWT scope required for mutating methods.
const writeScope = "dsc.write"

var errUnauthorized = errors.New("authentication required")

type authenticator struct {
	token       string
	jwtSecret   []byte
	jwtIssuer   string
	jwtAudience string
	open        bool
}

func newAuthenticator(cfg config.AuthConfig) *authenticator {
	return &authenticator{
		token:       strings.TrimSpace(cfg.Token),
		jwtSecret:   []byte(strings.TrimSpace(cfg.JWTSecret)),
		jwtIssuer:   strings.TrimSpace(cfg.JWTIssuer),
		jwtAudience: strings.TrimSpace(cfg.JWTAudience),
		open:        !cfg.Enabled(),
	}
}

// authorize accepts the request when it presents the configured bearer token
// or a valid HMAC JWT carrying the write scope.
func (a *authenticator) authorize(r *http.Request) error {
	if a.open {
		return nil
	}
	bearer := extractBearer(r.Header.Get("Authorization"))
	if bearer == "" {
		return errUnauthorized
	}
	if a.token != "" && constantTimeEqual(bearer, a.token) {
		return nil
	}
	if len(a.jwtSecret) > 0 {
		if err := a.validateJWT(bearer); err == nil {
			return nil
		}
	}
	return errUnauthorized
}

func (a *authenticator) validateJWT(tokenString string) error {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"})}
	if a.jwtIssuer != "" {
		opts = append(opts, jwt.WithIssuer(a.jwtIssuer))
	}
	if a.jwtAudience != "" {
		opts = append(opts, jwt.WithAudience(a.jwtAudience))
	}
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return a.jwtSecret, nil
	}, opts...)
	if err != nil {
		return err
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return errors.New("token invalid")
	}
	if !hasScope(claims, writeScope) {
		return fmt.Errorf("missing scope %s", writeScope)
	}
	return nil
}

func hasScope(claims jwt.MapClaims, required string) bool {
	raw, ok := claims["scope"]
	if !ok {
		return false
	}
	switch value := raw.(type) {
	case string:
		for _, scope := range strings.Fields(value) {
			if scope == required {
				return true
			}
		}
	case []interface{}:
		for _, entry := range value {
			if scope, ok := entry.(string); ok && scope == required {
				return true
			}
		}
	}
	return false
}

func extractBearer(header string) string {
	header = strings.TrimSpace(header)
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
