package signup

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/ankitsahu6387/expenseTracker/pkg/api/client"
)

// Outcome classifies how a submission ended.
type Outcome string

const (
	OutcomeInvalid    Outcome = "invalid"
	OutcomeFailed     Outcome = "failed"
	OutcomeRegistered Outcome = "registered"
	// OutcomeNoToken is a successful response without a token. The user stays
	// on the form and no error is shown.
	OutcomeNoToken Outcome = "no_token"
)

// Submitter runs the sign-up flow: validate, upload the photo, register,
// then store the token, publish the user and navigate to the login view.
// It keeps no per-submission state and may be shared between callers.
type Submitter struct {
	uploader  Uploader
	registrar Registrar
	logger    *slog.Logger
	metrics   *Metrics
	now       func() time.Time
}

// Option customises a Submitter.
type Option func(*Submitter)

// WithMetrics records every submission outcome on m.
func WithMetrics(m *Metrics) Option {
	return func(s *Submitter) {
		s.metrics = m
	}
}

func NewSubmitter(uploader Uploader, registrar Registrar, logger *slog.Logger, opts ...Option) *Submitter {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Submitter{
		uploader:  uploader,
		registrar: registrar,
		logger:    logger,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Submit validates st.Form and, when valid, performs the network calls.
// The returned State carries the error to display, if any. Nil collaborators
// in fx are skipped.
func (s *Submitter) Submit(ctx context.Context, st State, fx Effects) (State, Outcome) {
	started := s.now()
	next, outcome := s.submit(ctx, st, fx)
	s.metrics.observe(outcome, s.now().Sub(started))
	return next, outcome
}

func (s *Submitter) submit(ctx context.Context, st State, fx Effects) (State, Outcome) {
	s.logger.Debug("submitting sign-up form", "form", st.Form)

	if err := Validate(st.Form); err != nil {
		var ve *ValidationError
		if !errors.As(err, &ve) {
			ve = &ValidationError{Message: MsgFallback}
		}
		s.logger.Info("sign-up validation failed", "field", ve.Field)
		return st.withError(ve.Message), OutcomeInvalid
	}
	st = st.withError("")

	sub := &submission{form: st.Form, effects: fx}
	err := runSteps(ctx, sub,
		step{name: "upload photo", run: s.uploadPhoto},
		step{name: "register", run: s.register},
		step{name: "store token", run: whenToken(storeToken)},
		step{name: "publish user", run: whenToken(publishUser)},
		step{name: "navigate", run: whenToken(navigate)},
	)
	if err != nil {
		s.logger.Warn("sign-up failed", "error", err)
		return st.withError(displayMessage(err)), OutcomeFailed
	}
	if sub.result.Token == "" {
		s.logger.Info("registration returned no token")
		return st, OutcomeNoToken
	}
	s.logger.Info("registration complete", "user_id", sub.result.User.ID)
	return st, OutcomeRegistered
}

func (s *Submitter) uploadPhoto(ctx context.Context, sub *submission) error {
	if !sub.form.HasPhoto() {
		return nil
	}
	if s.uploader == nil {
		return errors.New("no photo uploader configured")
	}
	s.logger.Debug("uploading profile photo", "filename", sub.form.Photo.Filename, "bytes", len(sub.form.Photo.Data))
	url, err := s.uploader.UploadPhoto(ctx, *sub.form.Photo)
	if err != nil {
		return err
	}
	sub.imageURL = url
	return nil
}

func (s *Submitter) register(ctx context.Context, sub *submission) error {
	if s.registrar == nil {
		return errors.New("no registrar configured")
	}
	s.logger.Debug("sending registration request", "email", sub.form.Email, "has_image", sub.imageURL != "")
	res, err := s.registrar.Register(ctx, RegisterRequest{
		FullName:        sub.form.FullName,
		Email:           sub.form.Email,
		Password:        sub.form.Password,
		ProfileImageURL: sub.imageURL,
	})
	if err != nil {
		return err
	}
	sub.result = res
	return nil
}

func whenToken(run func(ctx context.Context, sub *submission) error) func(ctx context.Context, sub *submission) error {
	return func(ctx context.Context, sub *submission) error {
		if sub.result.Token == "" {
			return nil
		}
		return run(ctx, sub)
	}
}

func storeToken(ctx context.Context, sub *submission) error {
	if sub.effects.Tokens == nil {
		return nil
	}
	return sub.effects.Tokens.SaveToken(ctx, sub.result.Token)
}

func publishUser(ctx context.Context, sub *submission) error {
	if sub.effects.Session == nil {
		return nil
	}
	return sub.effects.Session.Update(ctx, sub.result.User)
}

func navigate(_ context.Context, sub *submission) error {
	if sub.effects.Navigator == nil || sub.navigated {
		return nil
	}
	sub.effects.Navigator.Navigate(LoginPath)
	sub.navigated = true
	return nil
}

// displayMessage prefers the message the server put in its error body.
func displayMessage(err error) string {
	var apiErr client.APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return MsgFallback
}
