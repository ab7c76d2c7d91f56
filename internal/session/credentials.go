// Package session holds the login credentials used against the campus
// payment site and their on-disk form.
package session

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"
	"unicode"

	"github.com/BurntSushi/toml"

	"github.com/LISSConsulting/LISSTech.PowerUsage/internal/fsutil"
)

// FileName is the credentials file inside the config directory.
const FileName = "credentials.toml"

// Credentials are the cookies and CSRF token of a logged-in browser session.
type Credentials struct {
	JSessionID string `toml:"j_session_id" json:"j_session_id"`
	Cookie     string `toml:"cookie" json:"cookie"`
	CSRFToken  string `toml:"x_csrf_token" json:"x_csrf_token"`
}

// Empty reports whether no credentials are set.
func (c Credentials) Empty() bool {
	return c.JSessionID == "" && c.Cookie == "" && c.CSRFToken == ""
}

// Sanitize strips characters that cannot appear in a cookie value from the
// session id and cookie. The CSRF token is sent as its own header and is
// kept as is.
func (c Credentials) Sanitize() Credentials {
	return Credentials{
		JSessionID: sanitizeCookie(c.JSessionID),
		Cookie:     sanitizeCookie(c.Cookie),
		CSRFToken:  c.CSRFToken,
	}
}

func sanitizeCookie(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r == ' ', r == '"', r == ',', r == ';', r == '\\', unicode.IsControl(r):
			return -1
		}
		return r
	}, s)
}

// CookieHeader renders the Cookie request header.
func (c Credentials) CookieHeader() string {
	return "JSESSIONID=" + c.JSessionID + "; cookie=" + c.Cookie
}

// String redacts every field to its first five characters.
func (c Credentials) String() string {
	return fmt.Sprintf("Credentials{j_session_id: %s, cookie: %s, x_csrf_token: %s}",
		redact(c.JSessionID), redact(c.Cookie), redact(c.CSRFToken))
}

// GoString keeps %#v from printing the secrets.
func (c Credentials) GoString() string { return c.String() }

func redact(s string) string {
	r := []rune(s)
	if len(r) > 5 {
		r = r[:5]
	}
	return string(r) + "..."
}

// Load reads credentials from path. A missing file yields empty
// credentials.
func Load(path string) (Credentials, error) {
	var c Credentials
	if _, err := toml.DecodeFile(path, &c); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Credentials{}, nil
		}
		return Credentials{}, fmt.Errorf("session: load %s: %w", path, err)
	}
	return c, nil
}

// Save writes c to path, readable by the owner only.
func Save(path string, c Credentials) error {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(c); err != nil {
		return fmt.Errorf("session: encode: %w", err)
	}
	if err := fsutil.WriteFileAtomic(path, buf.Bytes()); err != nil {
		return fmt.Errorf("session: save: %w", err)
	}
	if err := os.Chmod(path, 0o600); err != nil {
		return fmt.Errorf("session: save: %w", err)
	}
	return nil
}
