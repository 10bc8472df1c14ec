package utils

import (
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
	"github.com/mindwell-dev/mindwell/internal/domain"
	"github.com/mindwell-dev/mindwell/internal/errors"
)

// MessageTextValidator trims, strips any markup and bounds message
// text. Messages are plain text; StrictPolicy removes everything
// tag-shaped before the text is stored or pushed to other clients.
type MessageTextValidator struct {
	MaxLength int

	policy *bluemonday.Policy
}

func NewMessageTextValidator(maxLength int) *MessageTextValidator {
	return &MessageTextValidator{MaxLength: maxLength, policy: bluemonday.StrictPolicy()}
}

// Text returns the cleaned message text or a validation error.
func (v *MessageTextValidator) Text(text domain.MsgText) (domain.MsgText, error) {
	cleaned := strings.TrimSpace(v.policy.Sanitize(text))
	if cleaned == "" {
		return "", errors.EmptyText()
	}
	if utf8.RuneCountInString(cleaned) > v.MaxLength {
		return "", errors.TextTooLong(v.MaxLength)
	}
	return cleaned, nil
}
