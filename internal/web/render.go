package web

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/yuin/goldmark"

	"github.com/roasbeef/p4review/internal/p4"
	"github.com/roasbeef/p4review/internal/review"
	"github.com/roasbeef/p4review/internal/spec"
	"github.com/roasbeef/p4review/internal/store"
)

// jsonMiddleware sets the JSON content type on every response.
func jsonMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next(w, r)
	}
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("Error encoding JSON response", "error", err)
	}
}

// invalidResponse is the body of a rejected mutation.
type invalidResponse struct {
	IsValid  bool              `json:"isValid"`
	Error    string            `json:"error,omitempty"`
	Messages map[string]string `json:"messages,omitempty"`
	Files    []string          `json:"files,omitempty"`
}

// statusFor maps an error to its HTTP status.
func statusFor(err error) int {
	var (
		verr *spec.ValidationError
		serr *spec.SubmitConflictError
	)

	switch {
	case errors.Is(err, store.ErrNotFound),
		errors.Is(err, p4.ErrNotFound),
		errors.Is(err, review.ErrNoVersion),
		errors.Is(err, review.ErrNoFile):

		return http.StatusNotFound

	case errors.Is(err, review.ErrUnauthorized),
		errors.Is(err, review.ErrBadToken):

		return http.StatusForbidden

	case errors.As(err, &verr):
		return http.StatusBadRequest

	case errors.As(err, &serr),
		errors.Is(err, store.ErrConflict),
		errors.Is(err, p4.ErrConflict):

		return http.StatusConflict

	default:
		return http.StatusInternalServerError
	}
}

// writeError renders err as an invalid response with the mapped status.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request,
	err error) {

	status := statusFor(err)
	resp := invalidResponse{Error: err.Error()}

	var (
		verr *spec.ValidationError
		serr *spec.SubmitConflictError
	)
	switch {
	case errors.As(err, &verr):
		resp.Error = ""
		resp.Messages = verr.Messages

	case errors.As(err, &serr):
		resp.Files = serr.Files

	case status == http.StatusInternalServerError:
		s.log.ErrorContext(r.Context(), "Request failed",
			"method", r.Method, "path", r.URL.Path, "error", err)
		resp.Error = "internal error"
	}

	writeJSON(w, status, resp)
}

// badRequest rejects a request with a message for one field.
func badRequest(w http.ResponseWriter, field, msg string) {
	writeJSON(w, http.StatusBadRequest, invalidResponse{
		Messages: map[string]string{field: msg},
	})
}

var markdown = goldmark.New()

// firstLineHTML renders the first line of a description as inline HTML.
func firstLineHTML(description string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(description), "\n")
	if line == "" {
		return ""
	}

	var buf bytes.Buffer
	if err := markdown.Convert([]byte(line), &buf); err != nil {
		return line
	}

	out := strings.TrimSpace(buf.String())
	out = strings.TrimPrefix(out, "<p>")
	out = strings.TrimSuffix(out, "</p>")

	return out
}

// avatarURL returns the Gravatar URL for an email address.
func avatarURL(email string) string {
	sum := md5.Sum([]byte(strings.ToLower(strings.TrimSpace(email))))

	return "https://www.gravatar.com/avatar/" + hex.EncodeToString(sum[:]) +
		"?s=64&d=retro"
}

// avatarCache remembers user emails fetched from the server.
type avatarCache struct {
	client p4.Client

	mu     sync.Mutex
	emails map[string]string
}

func newAvatarCache(c p4.Client) *avatarCache {
	return &avatarCache{
		client: c,
		emails: make(map[string]string),
	}
}

// URL returns the avatar of user. Users the server does not know get an
// avatar derived from their name.
func (a *avatarCache) URL(ctx context.Context, user string) string {
	a.mu.Lock()
	email, ok := a.emails[user]
	a.mu.Unlock()

	if !ok {
		email = user
		if a.client != nil {
			u, err := spec.Fetch[spec.User](ctx, a.client, user)
			if err == nil && u.Email != "" {
				email = u.Email
			}
		}

		a.mu.Lock()
		a.emails[user] = email
		a.mu.Unlock()
	}

	return avatarURL(email)
}

// caller returns the user the request is made on behalf of.
func caller(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(UserHeader))
}

// requireCaller rejects requests without a caller identity.
func requireCaller(w http.ResponseWriter, r *http.Request) (string, bool) {
	user := caller(r)
	if user == "" {
		writeJSON(w, http.StatusUnauthorized, invalidResponse{
			Error: fmt.Sprintf("missing %s header", UserHeader),
		})
		return "", false
	}

	return user, true
}

// decodeBody fills v from a JSON body. Form-encoded bodies are handled by
// the callers through r.Form.
func decodeBody(r *http.Request, v any) (bool, error) {
	ct := r.Header.Get("Content-Type")
	if !strings.HasPrefix(ct, "application/json") {
		return false, r.ParseForm()
	}

	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return true, spec.NewValidationError(spec.InvalidType, "body",
			"Request body is not valid JSON.")
	}

	return true, nil
}
