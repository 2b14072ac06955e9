// Package mail composes review notification mail and hands it to a
// Sender. Delivery itself belongs to an external mailer.
package mail

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"unicode/utf8"
)

// ParamKey is the event parameter under which earlier listeners leave the
// Message to send.
const ParamKey = "mail"

// Message is one notification.
type Message struct {
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	Body    string   `json:"body"`

	// ReviewID threads every message about a review together.
	ReviewID int64 `json:"review,omitempty"`

	// Headers are set by the mail listener.
	Headers map[string]string `json:"headers,omitempty"`
}

// Recipients returns the sorted, de-duplicated recipients, leaving out
// the users in skip.
func Recipients(users []string, skip ...string) []string {
	drop := make(map[string]bool, len(skip))
	for _, u := range skip {
		drop[u] = true
	}

	seen := make(map[string]bool, len(users))
	var out []string
	for _, u := range users {
		if u == "" || drop[u] || seen[u] {
			continue
		}
		seen[u] = true
		out = append(out, u)
	}
	sort.Strings(out)

	return out
}

// Subject builds the subject line for a review notification from the first
// line of its description.
func Subject(reviewID int64, description string) string {
	first, _, _ := strings.Cut(strings.TrimSpace(description), "\n")
	if utf8.RuneCountInString(first) > 80 {
		first = string([]rune(first)[:77]) + "..."
	}

	return fmt.Sprintf("[Review %d] %s", reviewID, first)
}

// Sender delivers a message.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// LogSender writes messages to the log instead of delivering them.
type LogSender struct {
	Log *slog.Logger
}

// Send implements Sender.
func (s *LogSender) Send(ctx context.Context, msg Message) error {
	log := s.Log
	if log == nil {
		log = slog.Default()
	}

	log.InfoContext(ctx, "Mail notification", "to", msg.To,
		"subject", msg.Subject, "review", msg.ReviewID)

	return nil
}

// DiscardSender drops every message.
type DiscardSender struct{}

// Send implements Sender.
func (DiscardSender) Send(context.Context, Message) error { return nil }

// NewSender returns the sender configured by name: "log" or "none".
func NewSender(name string, log *slog.Logger) (Sender, error) {
	switch name {
	case "", "log":
		return &LogSender{Log: log}, nil
	case "none":
		return DiscardSender{}, nil
	default:
		return nil, fmt.Errorf("unknown mail sender %q", name)
	}
}
