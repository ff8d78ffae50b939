package syncqueue

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	gobreaker "github.com/sony/gobreaker/v2"
)

func TestRouteFor(t *testing.T) {
	tests := []struct {
		action Action
		typ    ResourceType
		key    string
		method string
		path   string
	}{
		{ActionCreate, TypeResident, "", http.MethodPost, "/api/residents"},
		{ActionUpdate, TypeResident, "r-1", http.MethodPut, "/api/residents/r-1"},
		{ActionDelete, TypeResident, "r-1", http.MethodDelete, "/api/residents/r-1"},
		{ActionCreate, TypeHousehold, "", http.MethodPost, "/api/households"},
		{ActionUpdate, TypeHousehold, "137404001-0001", http.MethodPut, "/api/households/137404001-0001"},
		{ActionDelete, TypeHousehold, "a b", http.MethodDelete, "/api/households/a%20b"},
		{ActionCreate, TypeUser, "", http.MethodPost, "/api/auth/create-profile"},
		{ActionUpdate, TypeUser, "", http.MethodPut, "/api/auth/profile"},
		{ActionDelete, TypeUser, "", http.MethodDelete, "/api/auth/profile"},
	}
	for _, tt := range tests {
		route, err := RouteFor(Item{Action: tt.action, Type: tt.typ, ResourceKey: tt.key})
		if err != nil {
			t.Fatalf("RouteFor(%s %s) error = %v", tt.action, tt.typ, err)
		}
		if route.Method != tt.method || route.Path != tt.path {
			t.Errorf("RouteFor(%s %s) = %s %s, want %s %s", tt.action, tt.typ, route.Method, route.Path, tt.method, tt.path)
		}
	}

	if _, err := RouteFor(Item{Action: "PATCH", Type: TypeResident}); !errors.Is(err, ErrNoRoute) {
		t.Fatalf("unknown action error = %v", err)
	}
}

type recorded struct {
	method, path, auth, apikey, contentType, body string
}

type recorder struct {
	mu       sync.Mutex
	requests []recorded
	status   atomic.Int32
}

func newRecorder(t *testing.T) (*recorder, *httptest.Server) {
	t.Helper()
	rec := &recorder{}
	rec.status.Store(http.StatusOK)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		rec.mu.Lock()
		rec.requests = append(rec.requests, recorded{
			method:      r.Method,
			path:        r.URL.EscapedPath(),
			auth:        r.Header.Get("Authorization"),
			apikey:      r.Header.Get("apikey"),
			contentType: r.Header.Get("Content-Type"),
			body:        string(body),
		})
		rec.mu.Unlock()
		w.WriteHeader(int(rec.status.Load()))
		_, _ = w.Write([]byte(`{"message":"handled"}`))
	}))
	t.Cleanup(srv.Close)
	return rec, srv
}

func (r *recorder) all() []recorded {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]recorded(nil), r.requests...)
}

func newDispatcher(t *testing.T, baseURL string) *HTTPDispatcher {
	t.Helper()
	d, err := NewHTTPDispatcher(HTTPConfig{BaseURL: baseURL + "/", APIKey: "anon-key", Tokens: StaticToken("session-token")})
	if err != nil {
		t.Fatalf("NewHTTPDispatcher() error = %v", err)
	}
	return d
}

func TestNewHTTPDispatcher_Validation(t *testing.T) {
	if _, err := NewHTTPDispatcher(HTTPConfig{Tokens: StaticToken("x")}); err == nil {
		t.Fatal("expected error without base url")
	}
	if _, err := NewHTTPDispatcher(HTTPConfig{BaseURL: "http://localhost"}); err == nil {
		t.Fatal("expected error without token source")
	}
}

func TestHTTPDispatcher_SendsAuthenticatedJSON(t *testing.T) {
	rec, srv := newRecorder(t)
	d := newDispatcher(t, srv.URL)

	err := d.Dispatch(context.Background(), Item{
		ID:     "item-1",
		Action: ActionCreate,
		Type:   TypeResident,
		Data:   []byte(`{"first_name":"Juan"}`),
	})
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}

	reqs := rec.all()
	if len(reqs) != 1 {
		t.Fatalf("requests = %d, want 1", len(reqs))
	}
	got := reqs[0]
	if got.method != http.MethodPost || got.path != "/api/residents" {
		t.Errorf("request = %s %s", got.method, got.path)
	}
	if got.auth != "Bearer session-token" {
		t.Errorf("Authorization = %q", got.auth)
	}
	if got.apikey != "anon-key" {
		t.Errorf("apikey = %q", got.apikey)
	}
	if got.contentType != "application/json" || got.body != `{"first_name":"Juan"}` {
		t.Errorf("body = %q (%s)", got.body, got.contentType)
	}
}

func TestHTTPDispatcher_DeleteHasNoBody(t *testing.T) {
	rec, srv := newRecorder(t)
	d := newDispatcher(t, srv.URL)

	err := d.Dispatch(context.Background(), Item{Action: ActionDelete, Type: TypeHousehold, ResourceKey: "HH-1", Data: []byte(`{"x":1}`)})
	if err != nil {
		t.Fatal(err)
	}
	got := rec.all()[0]
	if got.method != http.MethodDelete || got.path != "/api/households/HH-1" || got.body != "" {
		t.Fatalf("request = %+v", got)
	}
}

func TestHTTPDispatcher_Non2xxIsError(t *testing.T) {
	rec, srv := newRecorder(t)
	rec.status.Store(http.StatusConflict)
	d := newDispatcher(t, srv.URL)

	err := d.Dispatch(context.Background(), Item{Action: ActionCreate, Type: TypeUser})
	var se *StatusError
	if !errors.As(err, &se) || se.StatusCode != http.StatusConflict {
		t.Fatalf("Dispatch() error = %v, want 409 StatusError", err)
	}
	if se.Body != `{"message":"handled"}` {
		t.Fatalf("StatusError.Body = %q", se.Body)
	}
}

func TestHTTPDispatcher_BreakerOpensOnServerErrors(t *testing.T) {
	rec, srv := newRecorder(t)
	rec.status.Store(http.StatusServiceUnavailable)
	d := newDispatcher(t, srv.URL)
	item := Item{Action: ActionCreate, Type: TypeResident}

	for i := 0; i < 5; i++ {
		if err := d.Dispatch(context.Background(), item); err == nil {
			t.Fatalf("attempt %d: expected error", i)
		}
	}
	err := d.Dispatch(context.Background(), item)
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Fatalf("sixth Dispatch() error = %v, want ErrOpenState", err)
	}
	if n := len(rec.all()); n != 5 {
		t.Fatalf("server saw %d requests, want 5", n)
	}
	if d.BreakerState() != "open" {
		t.Fatalf("BreakerState() = %s", d.BreakerState())
	}
}

func TestHTTPDispatcher_ClientErrorsDoNotTrip(t *testing.T) {
	rec, srv := newRecorder(t)
	rec.status.Store(http.StatusUnprocessableEntity)
	d := newDispatcher(t, srv.URL)

	for i := 0; i < 8; i++ {
		_ = d.Dispatch(context.Background(), Item{Action: ActionCreate, Type: TypeResident})
	}
	if n := len(rec.all()); n != 8 {
		t.Fatalf("server saw %d requests, want 8", n)
	}
	if d.BreakerState() != "closed" {
		t.Fatalf("BreakerState() = %s", d.BreakerState())
	}
}

type failingTokens struct{}

func (failingTokens) Token(context.Context) (string, error) { return "", errors.New("no session") }

func TestHTTPDispatcher_TokenFailure(t *testing.T) {
	rec, srv := newRecorder(t)
	d, err := NewHTTPDispatcher(HTTPConfig{BaseURL: srv.URL, Tokens: failingTokens{}})
	if err != nil {
		t.Fatal(err)
	}
	if err := d.Dispatch(context.Background(), Item{Action: ActionCreate, Type: TypeResident}); err == nil {
		t.Fatal("expected token error")
	}
	if len(rec.all()) != 0 {
		t.Fatal("request sent without token")
	}
}
