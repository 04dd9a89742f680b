// Package auth supplies the user identity behind an HTTP request. The relay
// trusts whatever identity it returns.
package auth

import (
	"errors"
	"fmt"

	"github.com/dkeye/relay/internal/domain"
	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
)

var ErrUnauthenticated = errors.New("no authenticated user")

const sessionKey = "user_id"

type Authenticator interface {
	Identify(c *gin.Context) (domain.UserID, error)
}

// Func adapts a plain function to Authenticator.
type Func func(c *gin.Context) (domain.UserID, error)

func (f Func) Identify(c *gin.Context) (domain.UserID, error) { return f(c) }

// SessionAuthenticator reads the user id from the cookie session. It needs
// the sessions middleware in front of it.
type SessionAuthenticator struct{}

func (SessionAuthenticator) Identify(c *gin.Context) (domain.UserID, error) {
	raw, ok := sessions.Default(c).Get(sessionKey).(string)
	if !ok || raw == "" {
		return "", ErrUnauthenticated
	}
	user, err := domain.ParseUserID(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrUnauthenticated, err)
	}
	return user, nil
}

// Login binds user to the caller's session.
func Login(c *gin.Context, user domain.UserID) error {
	s := sessions.Default(c)
	s.Set(sessionKey, string(user))
	if err := s.Save(); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func Logout(c *gin.Context) error {
	s := sessions.Default(c)
	s.Clear()
	if err := s.Save(); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}
