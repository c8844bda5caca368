package audit

import (
	"strconv"
	"strings"
	"unicode/utf8"
)

// DefaultCommentMinLength applies when no length is configured
const DefaultCommentMinLength = 10

// ErrInvalidComment indicates a mandatory audit comment that is missing or too short
type ErrInvalidComment struct {
	MinLength int
	Length    int
}

func (e ErrInvalidComment) Error() string {
	return "audit comment must be at least " + strconv.Itoa(e.MinLength) +
		" characters, got " + strconv.Itoa(e.Length)
}

// Is implements the errors.Is interface for ErrInvalidComment
func (e ErrInvalidComment) Is(target error) bool {
	_, ok := target.(ErrInvalidComment)
	return ok
}

// CommentPolicy is the single server-side rule for audit comment text
type CommentPolicy struct {
	MinLength int
}

// NewCommentPolicy falls back to DefaultCommentMinLength for non-positive lengths
func NewCommentPolicy(minLength int) CommentPolicy {
	if minLength <= 0 {
		minLength = DefaultCommentMinLength
	}
	return CommentPolicy{MinLength: minLength}
}

// Require trims the comment and rejects it if shorter than the minimum
func (p CommentPolicy) Require(comment string) (string, error) {
	trimmed := strings.TrimSpace(comment)
	if n := utf8.RuneCountInString(trimmed); n < p.MinLength {
		return "", ErrInvalidComment{MinLength: p.MinLength, Length: n}
	}
	return trimmed, nil
}

// Optional trims a comment that carries no length requirement
func (p CommentPolicy) Optional(comment string) string {
	return strings.TrimSpace(comment)
}

// ForKind applies Require or Optional depending on the record kind
func (p CommentPolicy) ForKind(kind Kind, comment string) (string, error) {
	if kind.RequiresComment() {
		return p.Require(comment)
	}
	return p.Optional(comment), nil
}
