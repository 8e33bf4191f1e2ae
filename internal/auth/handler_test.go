package auth_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/odyssey-erp/invoicing/internal/auth"
	"github.com/odyssey-erp/invoicing/internal/shared"
	_ "github.com/odyssey-erp/invoicing/testing"
)

type stubRepo struct {
	user     *auth.User
	sessions map[string]int64
}

func (s *stubRepo) FindByEmail(ctx context.Context, email string) (*auth.User, error) {
	if s.user == nil || s.user.Email != email {
		return nil, shared.ErrNotFound
	}
	return s.user, nil
}

func (s *stubRepo) CreateUser(ctx context.Context, email, hash string) (*auth.User, error) {
	s.user = &auth.User{ID: 2, Email: email, PasswordHash: hash, IsActive: true}
	return s.user, nil
}

func (s *stubRepo) CreateSession(ctx context.Context, id string, userID int64, expiresAt time.Time, ip, ua string) error {
	s.sessions[id] = userID
	return nil
}

func (s *stubRepo) DeleteSession(ctx context.Context, id string) error {
	delete(s.sessions, id)
	return nil
}

type harness struct {
	router   http.Handler
	sessions *shared.SessionManager
	repo     *stubRepo
	mr       *miniredis.Miniredis
	cookies  []*http.Cookie
}

func newHarness(t *testing.T, user *auth.User) *harness {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	repo := &stubRepo{user: user, sessions: make(map[string]int64)}
	sessions := shared.NewSessionManager(client, "test_session", time.Hour, false)
	handler := auth.NewHandler(nil, auth.NewService(repo), sessions, shared.NewCSRFManager("csrfsecret"))

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess, err := sessions.Load(r.Context(), r)
			require.NoError(t, err)
			ctx := shared.ContextWithSession(r.Context(), sess)
			rec := httptest.NewRecorder()
			next.ServeHTTP(rec, r.WithContext(ctx))
			require.NoError(t, sessions.Commit(ctx, w, r, sess))
			for k, v := range rec.Header() {
				w.Header()[k] = v
			}
			w.WriteHeader(rec.Code)
			_, _ = w.Write(rec.Body.Bytes())
		})
	})
	r.Route("/auth", handler.MountRoutes)
	r.With(auth.RequireUser).Get("/api/ping", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	return &harness{router: r, sessions: sessions, repo: repo, mr: mr}
}

func (h *harness) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	for _, c := range h.cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)
	for _, c := range rec.Result().Cookies() {
		if c.MaxAge < 0 {
			h.cookies = nil
			continue
		}
		h.cookies = []*http.Cookie{c}
	}
	return rec
}

func activeUser(t *testing.T) *auth.User {
	t.Helper()
	hashed, err := bcrypt.GenerateFromPassword([]byte("correctpass"), bcrypt.MinCost)
	require.NoError(t, err)
	return &auth.User{ID: 1, Email: "user@test.local", PasswordHash: string(hashed), IsActive: true}
}

func TestSession_AnonymousGetsToken(t *testing.T) {
	h := newHarness(t, nil)

	rec := h.do(t, http.MethodGet, "/auth/session", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, false, body["authenticated"])
	assert.NotEmpty(t, body["csrf_token"])
	assert.Len(t, h.cookies, 1)
}

func TestLogin_InvalidCredentials(t *testing.T) {
	h := newHarness(t, activeUser(t))

	rec := h.do(t, http.MethodPost, "/auth/login", map[string]string{"email": "user@test.local", "password": "wrongpass"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid email or password")
	assert.Empty(t, h.repo.sessions)
}

func TestLogin_InactiveUser(t *testing.T) {
	user := activeUser(t)
	user.IsActive = false
	h := newHarness(t, user)

	rec := h.do(t, http.MethodPost, "/auth/login", map[string]string{"email": "user@test.local", "password": "correctpass"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLogin_ValidationFailure(t *testing.T) {
	h := newHarness(t, activeUser(t))

	rec := h.do(t, http.MethodPost, "/auth/login", map[string]string{"email": "not-an-email", "password": "x"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "email")
}

func TestLogin_RenewsSessionAndUnlocksAPI(t *testing.T) {
	h := newHarness(t, activeUser(t))

	rec := h.do(t, http.MethodGet, "/auth/session", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, h.cookies, 1)
	anonymousID := h.cookies[0].Value

	rec = h.do(t, http.MethodGet, "/api/ping", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = h.do(t, http.MethodPost, "/auth/login", map[string]string{"email": "user@test.local", "password": "correctpass"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Len(t, h.cookies, 1)
	assert.NotEqual(t, anonymousID, h.cookies[0].Value)
	assert.False(t, h.mr.Exists("session:"+anonymousID))
	assert.Equal(t, int64(1), h.repo.sessions[h.cookies[0].Value])

	rec = h.do(t, http.MethodGet, "/api/ping", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = h.do(t, http.MethodPost, "/auth/logout", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, h.repo.sessions)

	rec = h.do(t, http.MethodGet, "/api/ping", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestService_CreateUser(t *testing.T) {
	repo := &stubRepo{sessions: map[string]int64{}}
	svc := auth.NewService(repo)

	_, err := svc.CreateUser(context.Background(), "someone", "longenough")
	assert.Error(t, err)
	_, err = svc.CreateUser(context.Background(), "a@b.co", "short")
	assert.Error(t, err)

	u, err := svc.CreateUser(context.Background(), " Admin@Example.com ", "longenough")
	require.NoError(t, err)
	assert.Equal(t, "admin@example.com", u.Email)

	_, err = svc.Authenticate(context.Background(), "admin@example.com", "longenough")
	assert.NoError(t, err)
}
