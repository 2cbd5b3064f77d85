package web

import (
	"bytes"
	"context"
	"html"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ankitsahu6387/expenseTracker/internal/session"
	"github.com/ankitsahu6387/expenseTracker/internal/signup"
	"github.com/ankitsahu6387/expenseTracker/pkg/api/client"
	"github.com/ankitsahu6387/expenseTracker/pkg/logger"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type apiMock struct {
	uploaded []signup.Photo
	regFunc  func(req signup.RegisterRequest) (signup.AuthResult, error)
	requests []signup.RegisterRequest
}

func (m *apiMock) UploadPhoto(_ context.Context, p signup.Photo) (string, error) {
	m.uploaded = append(m.uploaded, p)
	return "http://cdn.test/" + p.Filename, nil
}

func (m *apiMock) Register(_ context.Context, req signup.RegisterRequest) (signup.AuthResult, error) {
	m.requests = append(m.requests, req)
	return m.regFunc(req)
}

func newTestServer(t *testing.T, api *apiMock, opts ...Option) (*Server, *session.Memory) {
	t.Helper()
	mem := session.NewMemory()
	sub := signup.NewSubmitter(api, api, logger.Discard())
	return New(sub, mem, logger.Discard(), opts...), mem
}

func postMultipart(t *testing.T, srv *Server, fields map[string]string, photo []byte) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if photo != nil {
		part, err := mw.CreateFormFile("profilePhoto", "me.png")
		require.NoError(t, err)
		_, err = part.Write(photo)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/signup", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func postForm(t *testing.T, srv *Server, values url.Values) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/signup", strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func findCookie(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func TestSignUpFormRenders(t *testing.T) {
	srv, _ := newTestServer(t, &apiMock{})
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/signup", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Create an Account")
	assert.Contains(t, rec.Body.String(), `placeholder="Min 8 Characters"`)
	require.NotNil(t, findCookie(rec, sessionCookie))
}

func TestSignUpValidationErrorRerendersForm(t *testing.T) {
	api := &apiMock{}
	srv, _ := newTestServer(t, api)

	rec := postForm(t, srv, url.Values{"fullName": {"John"}, "email": {"a@b"}, "password": {"pw"}})

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	body := html.UnescapeString(rec.Body.String())
	assert.Contains(t, body, signup.MsgEmailInvalid)
	assert.Contains(t, body, `value="John"`)
	assert.NotContains(t, body, "pw\"")
	assert.Empty(t, api.requests)
}

func TestSignUpSuccessRedirectsToLogin(t *testing.T) {
	token, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, jwtlib.RegisteredClaims{
		Subject:   "u1",
		ExpiresAt: jwtlib.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString([]byte("backend-secret"))
	require.NoError(t, err)
	api := &apiMock{regFunc: func(req signup.RegisterRequest) (signup.AuthResult, error) {
		return signup.AuthResult{Token: token, User: client.User{ID: "u1", FullName: req.FullName, Email: req.Email}}, nil
	}}
	srv, _ := newTestServer(t, api)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	mw.WriteField("fullName", "John")
	mw.WriteField("email", "john@example.com")
	mw.WriteField("password", "hunter22")
	part, err := mw.CreateFormFile("profilePhoto", "me.png")
	require.NoError(t, err)
	part.Write([]byte("\x89PNG\r\n\x1a\nrest"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/signup", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, signup.LoginPath, rec.Header().Get("Location"))
	tokenC := findCookie(rec, tokenCookie)
	require.NotNil(t, tokenC)
	assert.Equal(t, token, tokenC.Value)
	assert.True(t, tokenC.HttpOnly)
	assert.False(t, tokenC.Expires.IsZero())

	require.Len(t, api.uploaded, 1)
	assert.Equal(t, "image/png", api.uploaded[0].ContentType)
	require.Len(t, api.requests, 1)
	assert.Equal(t, "http://cdn.test/me.png", api.requests[0].ProfileImageURL)

	login := httptest.NewRequest(http.MethodGet, "/login", nil)
	login.AddCookie(findCookie(rec, sessionCookie))
	loginRec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(loginRec, login)

	assert.Equal(t, http.StatusOK, loginRec.Code)
	assert.Contains(t, loginRec.Body.String(), "Account created for John")
}

func TestSignUpShowsServerMessage(t *testing.T) {
	api := &apiMock{regFunc: func(signup.RegisterRequest) (signup.AuthResult, error) {
		return signup.AuthResult{}, client.APIError{Status: http.StatusBadRequest, Message: "User already exists"}
	}}
	srv, _ := newTestServer(t, api)

	rec := postForm(t, srv, url.Values{"fullName": {"John"}, "email": {"john@example.com"}, "password": {"pw"}})

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "User already exists")
	assert.Nil(t, findCookie(rec, tokenCookie))
}

func TestSignUpWithoutTokenStaysOnForm(t *testing.T) {
	api := &apiMock{regFunc: func(signup.RegisterRequest) (signup.AuthResult, error) {
		return signup.AuthResult{User: client.User{ID: "u1"}}, nil
	}}
	srv, mem := newTestServer(t, api)

	rec := postForm(t, srv, url.Values{"fullName": {"John"}, "email": {"john@example.com"}, "password": {"pw"}})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("Location"))
	assert.NotContains(t, rec.Body.String(), `class="error"`)
	sid := findCookie(rec, sessionCookie)
	require.NotNil(t, sid)
	_, err := session.Bind(mem, sid.Value).Current(context.Background())
	assert.ErrorIs(t, err, session.ErrNotFound)
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := signup.NewMetrics(reg)
	require.NoError(t, err)
	api := &apiMock{}
	sub := signup.NewSubmitter(api, api, logger.Discard(), signup.WithMetrics(m))
	srv := New(sub, nil, logger.Discard(), WithGatherer(reg))

	postForm(t, srv, url.Values{})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, string(body), `expense_signup_submissions_total{outcome="invalid"} 1`)
}

func TestSignUpRejectsOversizedPhoto(t *testing.T) {
	api := &apiMock{regFunc: func(signup.RegisterRequest) (signup.AuthResult, error) {
		return signup.AuthResult{Token: "tok"}, nil
	}}
	srv, _ := newTestServer(t, api, WithMaxPhotoBytes(10))
	fields := map[string]string{"fullName": "John", "email": "john@example.com", "password": "hunter22"}

	rec := postMultipart(t, srv, fields, bytes.Repeat([]byte("x"), 100))

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Contains(t, html.UnescapeString(rec.Body.String()), msgPhotoTooLarge)
	assert.Contains(t, rec.Body.String(), `value="John"`)
	assert.Empty(t, rec.Header().Get("Location"))
	assert.Empty(t, api.uploaded)
	assert.Empty(t, api.requests)
	assert.Nil(t, findCookie(rec, tokenCookie))
}

func TestSignUpAcceptsPhotoAtLimit(t *testing.T) {
	api := &apiMock{regFunc: func(signup.RegisterRequest) (signup.AuthResult, error) {
		return signup.AuthResult{Token: "tok"}, nil
	}}
	srv, _ := newTestServer(t, api, WithMaxPhotoBytes(10))
	fields := map[string]string{"fullName": "John", "email": "john@example.com", "password": "hunter22"}

	rec := postMultipart(t, srv, fields, bytes.Repeat([]byte("x"), 10))

	assert.Equal(t, http.StatusSeeOther, rec.Code)
	require.Len(t, api.uploaded, 1)
	assert.Len(t, api.uploaded[0].Data, 10)
}

func TestWatchSessionsLogsUpdates(t *testing.T) {
	api := &apiMock{regFunc: func(req signup.RegisterRequest) (signup.AuthResult, error) {
		return signup.AuthResult{Token: "tok", User: client.User{ID: "u7", FullName: req.FullName}}, nil
	}}
	var logs syncBuffer
	log := logger.NewWithWriter(&logs, "expense-web", slog.LevelInfo)
	srv := New(signup.NewSubmitter(api, api, logger.Discard()), session.NewMemory(), log)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		srv.WatchSessions(ctx)
	}()

	require.Eventually(t, func() bool {
		postForm(t, srv, url.Values{"fullName": {"John"}, "email": {"john@example.com"}, "password": {"pw"}})
		return strings.Contains(logs.String(), `"user_id":"u7"`)
	}, 2*time.Second, 20*time.Millisecond)
	assert.Contains(t, logs.String(), `"msg":"session updated"`)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("WatchSessions did not return after cancel")
	}
}
