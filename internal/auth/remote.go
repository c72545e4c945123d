package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	sessionPath       = "/auth/session"
	maxSessionPayload = 1 << 20
)

// RemoteResolver asks an auth server for the session belonging to a cookie.
// The endpoint defaults to {origin}/auth/session of the incoming request.
type RemoteResolver struct {
	endpoint string
	client   *http.Client
}

// NewRemoteResolver creates a resolver. An empty endpoint means the request origin is used.
func NewRemoteResolver(endpoint string, timeout time.Duration) *RemoteResolver {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &RemoteResolver{
		endpoint: strings.TrimRight(endpoint, "/"),
		client:   &http.Client{Timeout: timeout},
	}
}

type sessionResponse struct {
	User *struct {
		ID    string  `json:"id"`
		Name  *string `json:"name"`
		Email *string `json:"email"`
		Image *string `json:"image"`
	} `json:"user"`
}

// Resolve implements SessionResolver.
func (r *RemoteResolver) Resolve(ctx context.Context, creds Credentials) (*Identity, error) {
	if creds.Cookie == "" {
		return nil, ErrNoSession
	}

	url := r.endpoint
	if url == "" {
		if creds.Origin == "" {
			return nil, ErrNoSession
		}
		url = creds.Origin + sessionPath
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build session request: %w", err)
	}
	req.Header.Set("Cookie", creds.Cookie)
	req.Header.Set("Accept", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch session: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: session endpoint returned %d", ErrNoSession, resp.StatusCode)
	}

	var payload sessionResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxSessionPayload)).Decode(&payload); err != nil {
		return nil, fmt.Errorf("%w: decode session: %v", ErrNoSession, err)
	}
	if payload.User == nil || payload.User.ID == "" {
		return nil, ErrNoSession
	}

	return &Identity{
		ID:    payload.User.ID,
		Name:  payload.User.Name,
		Email: payload.User.Email,
		Image: payload.User.Image,
	}, nil
}
