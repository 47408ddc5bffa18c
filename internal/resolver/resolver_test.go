package resolver_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/grabbitapp/grabbit/internal/resolver"
)

func newTestResolver() *resolver.Resolver {
	return resolver.New(nil, []string{"tiktok.com"})
}

func TestExtractLink(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		text string
		want string
		ok   bool
	}{
		{
			name: "plain share link",
			text: "check this out https://vm.tiktok.com/ZM1234/ so funny",
			want: "https://vm.tiktok.com/ZM1234/",
			ok:   true,
		},
		{
			name: "full video link",
			text: "https://www.tiktok.com/@user/video/7299",
			want: "https://www.tiktok.com/@user/video/7299",
			ok:   true,
		},
		{
			name: "unrecognized host",
			text: "https://example.com/watch?v=1",
			ok:   false,
		},
		{
			name: "no link at all",
			text: "hello there",
			ok:   false,
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, ok := newTestResolver().ExtractLink(tt.text)
			if ok != tt.ok || got != tt.want {
				t.Fatalf("ExtractLink(%q) = (%q, %v), want (%q, %v)", tt.text, got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestResolve_FollowsOneRedirectHop(t *testing.T) {
	t.Parallel()

	const target = "https://www.tiktok.com/@user/video/42"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, target, http.StatusMovedPermanently)
	}))
	defer srv.Close()

	got := newTestResolver().Resolve(context.Background(), srv.URL)
	if got != target {
		t.Fatalf("Resolve() = %q, want %q", got, target)
	}
}

func TestResolve_NonRedirectFallsBack(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	if got := newTestResolver().Resolve(context.Background(), srv.URL); got != srv.URL {
		t.Fatalf("Resolve() = %q, want original %q", got, srv.URL)
	}
}

func TestResolve_NetworkErrorFallsBack(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // force connection refused

	if got := newTestResolver().Resolve(context.Background(), srv.URL); got != srv.URL {
		t.Fatalf("Resolve() = %q, want original %q", got, srv.URL)
	}
}
