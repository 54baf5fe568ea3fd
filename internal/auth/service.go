package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"go-chat-realtime/pkg/chat"

	"github.com/golang-jwt/jwt/v5"
)

// Authenticator validates handshake credentials. Every failure wraps
// chat.ErrAuthentication.
type Authenticator struct {
	verifier TokenVerifier
}

func NewAuthenticator(verifier TokenVerifier) *Authenticator {
	return &Authenticator{verifier: verifier}
}

func (a *Authenticator) Authenticate(credential string) (Identity, error) {
	credential = strings.TrimSpace(credential)
	if credential == "" {
		return Identity{}, fmt.Errorf("%w: missing credential", chat.ErrAuthentication)
	}

	identity, err := a.verifier.Verify(credential)
	switch {
	case err == nil:
		return identity, nil
	case errors.Is(err, jwt.ErrTokenExpired):
		return Identity{}, fmt.Errorf("%w: token expired", chat.ErrAuthentication)
	case errors.Is(err, ErrMissingIdentity):
		return Identity{}, fmt.Errorf("%w: %v", chat.ErrAuthentication, err)
	default:
		return Identity{}, fmt.Errorf("%w: invalid token", chat.ErrAuthentication)
	}
}

// CredentialFromRequest looks for a token in the "token" query parameter,
// then an "Authorization: Bearer" header, then the "token" cookie.
func CredentialFromRequest(r *http.Request) string {
	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}

	if header := r.Header.Get("Authorization"); header != "" {
		scheme, token, found := strings.Cut(header, " ")
		if found && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
	}

	if cookie, err := r.Cookie("token"); err == nil {
		return cookie.Value
	}

	return ""
}
