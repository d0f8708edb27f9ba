package auth

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// subjectClaims are checked in order; the platform's auth service has
// issued tokens with each of these.
var subjectClaims = []string{"userId", "user_id", "id", "_id", "sub"}

type JWTValidator struct {
	alg    string
	pubKey *rsa.PublicKey
	secret []byte
}

func NewJWTValidator(alg, secret, pubKeyPath string) (*JWTValidator, error) {
	jv := &JWTValidator{alg: alg}
	switch alg {
	case "RS256":
		b, err := os.ReadFile(pubKeyPath)
		if err != nil {
			return nil, fmt.Errorf("read pubkey: %w", err)
		}
		key, err := jwt.ParseRSAPublicKeyFromPEM(b)
		if err != nil {
			return nil, fmt.Errorf("parse pubkey: %w", err)
		}
		jv.pubKey = key
	case "HS256":
		if secret == "" {
			return nil, errors.New("hs256 secret required")
		}
		jv.secret = []byte(secret)
	default:
		return nil, fmt.Errorf("unsupported alg %q", alg)
	}
	return jv, nil
}

// Validate returns the user id carried by token.
func (j *JWTValidator) Validate(token string) (string, error) {
	parser := jwt.NewParser(jwt.WithValidMethods([]string{j.alg}))
	tok, err := parser.Parse(token, func(t *jwt.Token) (interface{}, error) {
		if j.alg == "RS256" {
			return j.pubKey, nil
		}
		return j.secret, nil
	})
	if err != nil {
		return "", err
	}
	claims, ok := tok.Claims.(jwt.MapClaims)
	if !ok || !tok.Valid {
		return "", errors.New("invalid token")
	}
	for _, name := range subjectClaims {
		if v, ok := claims[name]; ok {
			if s := claimString(v); s != "" {
				return s, nil
			}
		}
	}
	return "", errors.New("user id claim missing")
}

func claimString(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return fmt.Sprintf("%.0f", t)
	default:
		return ""
	}
}

// ParseBearer extracts the token from an Authorization header value.
func ParseBearer(header string) string {
	const prefix = "Bearer "
	if len(header) > len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
		return strings.TrimSpace(header[len(prefix):])
	}
	return ""
}
