package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestRemoteResolver(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/auth/session" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		switch r.Header.Get("Cookie") {
		case "sid=good":
			_, _ = w.Write([]byte(`{"user":{"id":"u1","name":"Alice","email":null,"image":"https://img/a.png"}}`))
		case "sid=anon":
			_, _ = w.Write([]byte(`{}`))
		case "sid=broken":
			_, _ = w.Write([]byte(`{"user":`))
		default:
			w.WriteHeader(http.StatusUnauthorized)
		}
	}))
	t.Cleanup(srv.Close)

	r := NewRemoteResolver("", time.Second)
	ctx := context.Background()

	id, err := r.Resolve(ctx, Credentials{Cookie: "sid=good", Origin: srv.URL})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if id.ID != "u1" || *id.Name != "Alice" || id.Email != nil || *id.Image != "https://img/a.png" {
		t.Fatalf("unexpected identity: %+v", id)
	}

	for _, cookie := range []string{"", "sid=anon", "sid=broken", "sid=bad"} {
		if _, err := r.Resolve(ctx, Credentials{Cookie: cookie, Origin: srv.URL}); !errors.Is(err, ErrNoSession) {
			t.Fatalf("cookie %q: expected ErrNoSession, got %v", cookie, err)
		}
	}

	if _, err := r.Resolve(ctx, Credentials{Cookie: "sid=good"}); !errors.Is(err, ErrNoSession) {
		t.Fatalf("missing origin: expected ErrNoSession, got %v", err)
	}

	fixed := NewRemoteResolver(srv.URL+"/auth/session", time.Second)
	if _, err := fixed.Resolve(ctx, Credentials{Cookie: "sid=good"}); err != nil {
		t.Fatalf("configured endpoint: %v", err)
	}
}

func TestRemoteResolverUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	r := NewRemoteResolver(url+"/auth/session", 200*time.Millisecond)
	_, err := r.Resolve(context.Background(), Credentials{Cookie: "sid=good"})
	if err == nil || errors.Is(err, ErrNoSession) {
		t.Fatalf("expected transport error, got %v", err)
	}
}
