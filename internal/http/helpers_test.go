package http

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ghmassaro/presenca-treino/internal/application"
	"github.com/ghmassaro/presenca-treino/internal/persistence/memory"
	"github.com/ghmassaro/presenca-treino/internal/testfixtures"
)

var (
	coach = testfixtures.Coach
	ana   = testfixtures.Ana
	bia   = testfixtures.Bia
)

type apiHarness struct {
	t       *testing.T
	handler http.Handler
	store   *memory.Storage
	factory *testfixtures.ServiceFactory
	auth    *application.AuthService
}

func newAPIHarness(t *testing.T) *apiHarness {
	t.Helper()

	factory := testfixtures.NewServiceFactory()
	store := testfixtures.OpenMemory(t, nil)
	services := factory.NewServices(store)
	admins := factory.Policy

	handler := NewRouter(RouterConfig{
		Auth:     NewAuthHandler(services.Auth, admins, false, factory.Logger),
		Sessions: NewSessionHandler(services.Attendance, services.Sessions, factory.Logger),
		Students: NewStudentHandler(services.Students, factory.Logger),
		Resolver: services.Auth,
		Metrics: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = io.WriteString(w, "# metrics\n")
		}),
		Health: store.Ping,
		Logger: factory.Logger,
	})

	return &apiHarness{t: t, handler: handler, store: store, factory: factory, auth: services.Auth}
}

func (h *apiHarness) token(who application.Identity) string {
	h.t.Helper()
	token, err := h.factory.Token(who)
	require.NoError(h.t, err)
	return token
}

// do sends a request as who. An empty identity sends no token.
func (h *apiHarness) do(method, path string, who application.Identity, body string) *httptest.ResponseRecorder {
	h.t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader).WithContext(context.Background())
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if who.Email != "" {
		req.Header.Set("Authorization", "Bearer "+h.token(who))
	}
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}
