// Package web serves the sign-up form as a server-rendered HTML page.
package web

import (
	"context"
	"errors"
	"html/template"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ankitsahu6387/expenseTracker/internal/session"
	"github.com/ankitsahu6387/expenseTracker/internal/signup"
	"github.com/ankitsahu6387/expenseTracker/pkg/api/client"
	"github.com/ankitsahu6387/expenseTracker/pkg/jwt"
)

const (
	sessionCookie       = "sid"
	tokenCookie         = "token"
	defaultMaxPhotoSize = 5 << 20
)

const msgPhotoTooLarge = "The selected photo is too large. Please choose a smaller image."

var errPhotoTooLarge = errors.New("profile photo exceeds size limit")

// Server wires the sign-up form to HTTP routes.
type Server struct {
	router        chi.Router
	submitter     *signup.Submitter
	sessions      session.Backend
	logger        *slog.Logger
	gatherer      prometheus.Gatherer
	maxPhotoBytes int64
	secureCookies bool
}

// Option customises a Server.
type Option func(*Server)

// WithGatherer exposes the gathered metrics on /metrics.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) {
		s.gatherer = g
	}
}

// WithMaxPhotoBytes caps the size of an uploaded profile photo.
func WithMaxPhotoBytes(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxPhotoBytes = n
		}
	}
}

// WithSecureCookies marks cookies Secure, for deployments behind TLS.
func WithSecureCookies(on bool) Option {
	return func(s *Server) {
		s.secureCookies = on
	}
}

func New(sub *signup.Submitter, sessions session.Backend, logger *slog.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if sessions == nil {
		sessions = session.NewMemory()
	}
	s := &Server{
		submitter:     sub,
		sessions:      sessions,
		logger:        logger,
		maxPhotoBytes: defaultMaxPhotoSize,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.router = s.routes()
	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// WatchSessions logs every session written by a process sharing the backend
// until ctx is done. It returns at once when the backend cannot be watched.
func (s *Server) WatchSessions(ctx context.Context) {
	w, ok := s.sessions.(session.Watcher)
	if !ok {
		return
	}
	session.Watch(ctx, w, func(sid string) {
		user, err := session.Bind(s.sessions, sid).Current(ctx)
		if err != nil {
			if !errors.Is(err, session.ErrNotFound) && ctx.Err() == nil {
				s.logger.Warn("load updated session", "session_id", sid, "error", err)
			}
			return
		}
		s.logger.Info("session updated", "session_id", sid, "user_id", user.ID)
	})
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)
	r.Use(s.ensureSession)

	r.Get("/", func(w http.ResponseWriter, req *http.Request) {
		http.Redirect(w, req, "/signup", http.StatusFound)
	})
	r.Get("/signup", s.handleSignUpForm)
	r.Post("/signup", s.handleSignUp)
	r.Get("/login", s.handleLogin)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		io.WriteString(w, "ok")
	})
	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
	return r
}

type sidKey struct{}

// ensureSession gives every browser a session id cookie.
func (s *Server) ensureSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sid := ""
		if c, err := r.Cookie(sessionCookie); err == nil {
			sid = strings.TrimSpace(c.Value)
		}
		if _, err := uuid.Parse(sid); err != nil {
			sid = uuid.NewString()
			http.SetCookie(w, &http.Cookie{
				Name:     sessionCookie,
				Value:    sid,
				Path:     "/",
				HttpOnly: true,
				Secure:   s.secureCookies,
				SameSite: http.SameSiteLaxMode,
			})
		}
		ctx := context.WithValue(r.Context(), sidKey{}, sid)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func sessionID(ctx context.Context) string {
	sid, _ := ctx.Value(sidKey{}).(string)
	return sid
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func (s *Server) handleSignUpForm(w http.ResponseWriter, r *http.Request) {
	s.render(w, http.StatusOK, signup.State{})
}

func (s *Server) handleSignUp(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxPhotoBytes+(1<<20))
	form, err := s.readForm(r)
	var tooBig *http.MaxBytesError
	if errors.Is(err, errPhotoTooLarge) || errors.As(err, &tooBig) {
		s.logger.Info("sign-up photo rejected", "limit_bytes", s.maxPhotoBytes)
		s.render(w, http.StatusRequestEntityTooLarge, signup.State{Form: form, Error: msgPhotoTooLarge})
		return
	}
	if err != nil {
		s.logger.Warn("read sign-up form", "error", err)
		s.render(w, http.StatusBadRequest, signup.State{Form: form, Error: signup.MsgFallback})
		return
	}

	var target string
	fx := signup.Effects{
		Tokens:    &cookieTokens{w: w, secure: s.secureCookies},
		Session:   session.Bind(s.sessions, sessionID(r.Context())),
		Navigator: signup.NavigatorFunc(func(path string) { target = path }),
	}
	st, outcome := s.submitter.Submit(r.Context(), signup.State{Form: form}, fx)

	switch {
	case target != "":
		http.Redirect(w, r, target, http.StatusSeeOther)
	case outcome == signup.OutcomeInvalid || outcome == signup.OutcomeFailed:
		s.render(w, http.StatusUnprocessableEntity, st)
	default:
		s.render(w, http.StatusOK, st)
	}
}

func (s *Server) readForm(r *http.Request) (signup.Form, error) {
	if err := r.ParseMultipartForm(s.maxPhotoBytes); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		return signup.Form{}, err
	}
	form := signup.Form{}.
		WithFullName(r.FormValue("fullName")).
		WithEmail(r.FormValue("email")).
		WithPassword(r.FormValue("password"))

	file, header, err := r.FormFile("profilePhoto")
	if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
		return form, nil
	}
	if err != nil {
		return form, err
	}
	defer file.Close()
	data, err := io.ReadAll(io.LimitReader(file, s.maxPhotoBytes+1))
	if err != nil {
		return form, err
	}
	if int64(len(data)) > s.maxPhotoBytes {
		return form, errPhotoTooLarge
	}
	if len(data) == 0 {
		return form, nil
	}
	contentType := header.Header.Get("Content-Type")
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = http.DetectContentType(data)
	}
	return form.WithPhoto(signup.Photo{
		Filename:    header.Filename,
		ContentType: contentType,
		Data:        data,
	}), nil
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	view := loginView{}
	user, err := session.Bind(s.sessions, sessionID(r.Context())).Current(r.Context())
	switch {
	case err == nil:
		view.User = &user
	case !errors.Is(err, session.ErrNotFound):
		s.logger.Warn("load session", "error", err)
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := loginPage.Execute(w, view); err != nil {
		s.logger.Error("render login page", "error", err)
	}
}

func (s *Server) render(w http.ResponseWriter, status int, st signup.State) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := signUpPage.Execute(w, signUpView{FullName: st.Form.FullName, Email: st.Form.Email, Error: st.Error}); err != nil {
		s.logger.Error("render sign-up page", "error", err)
	}
}

// cookieTokens keeps the token in the browser, the web counterpart of
// the file store the terminal uses.
type cookieTokens struct {
	w      http.ResponseWriter
	secure bool
}

func (c *cookieTokens) SaveToken(_ context.Context, token string) error {
	cookie := &http.Cookie{
		Name:     tokenCookie,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteLaxMode,
	}
	if claims, err := jwt.Inspect(token); err == nil && !claims.Expiry().IsZero() {
		cookie.Expires = claims.Expiry()
	}
	http.SetCookie(c.w, cookie)
	return nil
}

type signUpView struct {
	FullName string
	Email    string
	Error    string
}

type loginView struct {
	User *client.User
}

var signUpPage = template.Must(template.New("signup").Parse(`<!doctype html>
<html lang="en">
<head><meta charset="utf-8"><title>Create an Account</title></head>
<body>
  <h3>Create an Account</h3>
  <p>Join us today by entering your details below.</p>
  <form method="post" action="/signup" enctype="multipart/form-data">
    <label>Profile Photo <input type="file" name="profilePhoto" accept="image/*"></label>
    <label>Full Name <input type="text" name="fullName" placeholder="John" value="{{.FullName}}"></label>
    <label>Email Address <input type="text" name="email" placeholder="john@example.com" value="{{.Email}}"></label>
    <label>Password <input type="password" name="password" placeholder="Min 8 Characters"></label>
    {{if .Error}}<p class="error">{{.Error}}</p>{{end}}
    <button type="submit">SIGN UP</button>
    <p>Already have an account? <a href="/login">Login</a></p>
  </form>
</body>
</html>
`))

var loginPage = template.Must(template.New("login").Parse(`<!doctype html>
<html lang="en">
<head><meta charset="utf-8"><title>Login</title></head>
<body>
  <h3>Welcome Back</h3>
  {{with .User}}<p>Account created for {{.FullName}} ({{.Email}}). Please log in.</p>{{end}}
  <p>Don't have an account? <a href="/signup">Sign Up</a></p>
</body>
</html>
`))
