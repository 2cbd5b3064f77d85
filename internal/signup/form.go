package signup

import "log/slog"

// Secret is a string that never prints its value.
type Secret string

func (s Secret) String() string {
	if s == "" {
		return ""
	}
	return "[redacted]"
}

// LogValue keeps secrets out of structured logs.
func (s Secret) LogValue() slog.Value {
	return slog.StringValue(s.String())
}

// Reveal returns the underlying value.
func (s Secret) Reveal() string {
	return string(s)
}

// Photo is an image the user picked for their profile.
type Photo struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Form is a snapshot of the sign-up fields. The With methods return a new
// snapshot and leave the receiver untouched.
type Form struct {
	FullName string `validate:"required"`
	Email    string `validate:"email_address"`
	Password Secret `validate:"required"`
	Photo    *Photo `validate:"-"`
}

func (f Form) WithFullName(v string) Form {
	f.FullName = v
	return f
}

func (f Form) WithEmail(v string) Form {
	f.Email = v
	return f
}

func (f Form) WithPassword(v string) Form {
	f.Password = Secret(v)
	return f
}

// WithPhoto attaches a copy of p.
func (f Form) WithPhoto(p Photo) Form {
	cp := p
	cp.Data = append([]byte(nil), p.Data...)
	f.Photo = &cp
	return f
}

func (f Form) WithoutPhoto() Form {
	f.Photo = nil
	return f
}

// HasPhoto reports whether a profile photo was selected.
func (f Form) HasPhoto() bool {
	return f.Photo != nil
}

func (f Form) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.String("fullName", f.FullName),
		slog.String("email", f.Email),
		slog.Any("password", f.Password),
		slog.Bool("hasPhoto", f.HasPhoto()),
	}
	return slog.GroupValue(attrs...)
}

// State is what a front end renders: the form plus the current error, if any.
type State struct {
	Form  Form
	Error string
}

// WithForm replaces the form and keeps the current error.
func (s State) WithForm(f Form) State {
	s.Form = f
	return s
}

func (s State) withError(msg string) State {
	s.Error = msg
	return s
}
