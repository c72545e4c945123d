package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

// ErrNoSession is returned when credentials do not resolve to a user.
var ErrNoSession = errors.New("no session")

// Identity is the user a session belongs to.
type Identity struct {
	ID    string
	Name  *string
	Email *string
	Image *string
}

// Credentials are the request parts a session can be resolved from.
type Credentials struct {
	// Cookie is the raw Cookie header.
	Cookie string
	// Authorization is the raw Authorization header.
	Authorization string
	// Token is an explicit token, e.g. from a query parameter.
	Token string
	// Origin is scheme://host of the request, empty when the host is unknown.
	Origin string
}

// SessionResolver maps request credentials to a user identity.
// Implementations return ErrNoSession (possibly wrapped) when there is no valid session.
type SessionResolver interface {
	Resolve(ctx context.Context, creds Credentials) (*Identity, error)
}

// CredentialsFromRequest extracts credentials from an HTTP request.
func CredentialsFromRequest(r *http.Request) Credentials {
	return Credentials{
		Cookie:        r.Header.Get("Cookie"),
		Authorization: r.Header.Get("Authorization"),
		Token:         r.URL.Query().Get("token"),
		Origin:        RequestOrigin(r),
	}
}

// RequestOrigin returns scheme://host for r, honoring X-Forwarded-Proto.
func RequestOrigin(r *http.Request) string {
	if r.Host == "" {
		return ""
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if fwd := r.Header.Get("X-Forwarded-Proto"); fwd != "" {
		scheme = strings.TrimSpace(strings.Split(fwd, ",")[0])
	}
	return scheme + "://" + r.Host
}

// ChainResolver tries resolvers in order and returns the first identity found.
type ChainResolver []SessionResolver

// Resolve implements SessionResolver.
func (c ChainResolver) Resolve(ctx context.Context, creds Credentials) (*Identity, error) {
	var errs []error
	for _, r := range c {
		id, err := r.Resolve(ctx, creds)
		if err == nil {
			return id, nil
		}
		if !errors.Is(err, ErrNoSession) {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return nil, ErrNoSession
}

func bearerToken(header string) string {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func cookieValue(header, name string) string {
	if header == "" || name == "" {
		return ""
	}
	cookies, err := http.ParseCookie(header)
	if err != nil {
		return ""
	}
	for _, c := range cookies {
		if c.Name == name {
			return c.Value
		}
	}
	return ""
}
