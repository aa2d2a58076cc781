package transport

import (
	"context"
	"errors"
)

// ErrRecipientGone marks a delivery failure after which the recipient can
// never be reached again (blocked the bot, deactivated account, chat deleted).
// Adapters wrap platform errors with it so callers can use errors.Is.
var ErrRecipientGone = errors.New("recipient gone")

type ChatTarget struct {
	ChatID   int64
	ThreadID int // forum topic thread id (0 if none)
}

type MessageRef struct {
	ChatID    int64
	ThreadID  int
	MessageID int
}

type SendOptions struct {
	ParseMode      string
	DisablePreview bool
	Silent         bool
}

// Sender delivers text to a chat.
type Sender interface {
	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) (MessageRef, error)
}

// RecipientGoneError carries the platform's description alongside the
// ErrRecipientGone classification.
type RecipientGoneError struct {
	Target ChatTarget
	Reason string
	Err    error
}

func (e *RecipientGoneError) Error() string {
	return "recipient gone: " + e.Reason
}

func (e *RecipientGoneError) Unwrap() []error { return []error{ErrRecipientGone, e.Err} }

// IsRecipientGone reports whether err means the target should be forgotten.
func IsRecipientGone(err error) bool { return errors.Is(err, ErrRecipientGone) }
