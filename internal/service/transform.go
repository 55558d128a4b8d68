package service

import (
	"regexp"
	"strings"

	"telerelay/internal/constants"
	"telerelay/internal/errors"
	"telerelay/internal/models"
)

// ExtractContent applies a rule's extraction pattern to message text.
// The pattern matches case-insensitively and across lines. All matches
// are joined by a single space; zero matches means the message is
// filtered out (matched=false). An empty pattern passes the text
// through unchanged. A pattern that fails to compile returns an error
// so the caller can degrade to the raw content.
func ExtractContent(pattern, text string) (content string, matched bool, err error) {
	if pattern == "" {
		return text, true, nil
	}
	if len(pattern) > constants.MaxPatternLength {
		return "", false, errors.New(errors.ErrCodePatternInvalid, "extraction pattern too long")
	}

	re, compileErr := regexp.Compile("(?is)" + pattern)
	if compileErr != nil {
		return "", false, errors.Wrap(compileErr, errors.ErrCodePatternInvalid, "extraction pattern failed to compile")
	}

	matches := re.FindAllString(text, -1)
	if len(matches) == 0 {
		return "", false, nil
	}
	return strings.Join(matches, " "), true, nil
}

// Compose assembles the outgoing message body from the rule's header,
// the (possibly extracted) content, and the footer. Blank parts are
// omitted; present parts are separated by a blank line.
func Compose(rule *models.ForwardingRule, content string) string {
	parts := make([]string, 0, 3)
	if rule.HeaderText != "" {
		parts = append(parts, rule.HeaderText)
	}
	if content != "" {
		parts = append(parts, content)
	}
	if rule.FooterText != "" {
		parts = append(parts, rule.FooterText)
	}
	return strings.Join(parts, "\n\n")
}
