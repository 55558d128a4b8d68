package validation

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"unicode"

	"telerelay/internal/constants"
	"telerelay/internal/errors"
	"telerelay/internal/models"
)

// ValidatePhoneNumber validates phone number format and length
func ValidatePhoneNumber(phone string) error {
	if phone == "" {
		return errors.New(errors.ErrCodeInvalidInput, "phone number cannot be empty")
	}

	cleaned := strings.TrimPrefix(phone, "+")

	// Check length bounds
	if len(cleaned) < constants.MinPhoneNumberLength {
		return errors.New(errors.ErrCodeInvalidInput,
			fmt.Sprintf("phone number must be at least %d digits", constants.MinPhoneNumberLength))
	}

	if len(cleaned) > constants.MaxPhoneNumberLength {
		return errors.New(errors.ErrCodeInvalidInput,
			fmt.Sprintf("phone number too long (max %d digits)", constants.MaxPhoneNumberLength))
	}

	// Check that it contains only digits
	for _, char := range cleaned {
		if !unicode.IsDigit(char) {
			return errors.New(errors.ErrCodeInvalidInput, "phone number must contain only digits")
		}
	}

	return nil
}

// ValidateChatID validates a conversation identifier. Zero is never a
// valid chat and rules must not forward a conversation into itself.
func ValidateChatID(chatID int64, fieldName string) error {
	if chatID == 0 {
		return errors.New(errors.ErrCodeInvalidInput,
			fmt.Sprintf("%s cannot be zero", fieldName))
	}
	return nil
}

// ValidatePattern validates an extraction pattern's length. Pattern
// compilation is deliberately not checked here: a pattern that fails to
// compile degrades the rule to full-text forwarding at relay time, so
// the control plane only guards against oversized input.
func ValidatePattern(pattern string) error {
	if len(pattern) > constants.MaxPatternLength {
		return errors.New(errors.ErrCodeInvalidInput,
			fmt.Sprintf("extraction pattern too long (max %d characters)", constants.MaxPatternLength))
	}
	return nil
}

// ValidateDecoration validates header or footer text length
func ValidateDecoration(text, fieldName string) error {
	if len(text) > constants.MaxDecorationLength {
		return errors.New(errors.ErrCodeInvalidInput,
			fmt.Sprintf("%s too long (max %d characters)", fieldName, constants.MaxDecorationLength))
	}
	return nil
}

// ValidateButton validates an inline button definition. Label and URL
// must be provided together; a partial button is rejected rather than
// silently dropped so operators notice the mistake at submit time.
func ValidateButton(label, buttonURL string) error {
	if label == "" && buttonURL == "" {
		return nil
	}

	if label == "" || buttonURL == "" {
		return errors.New(errors.ErrCodeInvalidInput, "button label and URL must be provided together")
	}

	if len(label) > constants.MaxButtonLabelLength {
		return errors.New(errors.ErrCodeInvalidInput,
			fmt.Sprintf("button label too long (max %d characters)", constants.MaxButtonLabelLength))
	}

	if len(buttonURL) > constants.MaxButtonURLLength {
		return errors.New(errors.ErrCodeInvalidInput,
			fmt.Sprintf("button URL too long (max %d characters)", constants.MaxButtonURLLength))
	}

	parsed, err := url.Parse(buttonURL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return errors.New(errors.ErrCodeInvalidInput, "button URL must be a valid http or https URL")
	}

	return nil
}

// ValidateRule validates a forwarding rule submitted through the
// control API before it reaches storage or binding.
func ValidateRule(rule *models.ForwardingRule) error {
	if rule == nil {
		return errors.New(errors.ErrCodeInvalidInput, "rule cannot be nil")
	}

	if rule.UserID <= 0 {
		return errors.New(errors.ErrCodeInvalidInput, "rule must belong to a user")
	}

	if err := ValidateChatID(rule.SourceChatID, "source chat ID"); err != nil {
		return err
	}
	if err := ValidateChatID(rule.TargetChatID, "target chat ID"); err != nil {
		return err
	}
	if rule.SourceChatID == rule.TargetChatID {
		return errors.New(errors.ErrCodeInvalidInput, "source and target chat must differ")
	}

	if err := ValidatePattern(rule.ExtractPattern); err != nil {
		return err
	}
	if err := ValidateDecoration(rule.HeaderText, "header text"); err != nil {
		return err
	}
	if err := ValidateDecoration(rule.FooterText, "footer text"); err != nil {
		return err
	}

	return ValidateButton(rule.ButtonLabel, rule.ButtonURL)
}

// ValidateHTTPRequestSize validates incoming HTTP request size
func ValidateHTTPRequestSize(r *http.Request, maxSizeBytes int64) error {
	if r.ContentLength < 0 {
		return errors.New(errors.ErrCodeInvalidInput, "invalid content length")
	}

	if r.ContentLength > maxSizeBytes {
		return errors.New(errors.ErrCodeInvalidInput,
			fmt.Sprintf("request too large: %d bytes (max %d bytes)", r.ContentLength, maxSizeBytes))
	}

	return nil
}

// ValidateTimeout validates timeout values
func ValidateTimeout(timeoutSec int, fieldName string) error {
	if timeoutSec < 1 {
		return errors.New(errors.ErrCodeInvalidInput,
			fmt.Sprintf("%s must be at least 1 second", fieldName))
	}

	if timeoutSec > 3600 { // Max 1 hour
		return errors.New(errors.ErrCodeInvalidInput,
			fmt.Sprintf("%s too large (max 3600 seconds)", fieldName))
	}

	return nil
}

// ValidateRetentionDays validates backup retention period
func ValidateRetentionDays(days int) error {
	if days < 1 {
		return errors.New(errors.ErrCodeInvalidInput, "retention days must be at least 1")
	}

	if days > 3650 { // Max 10 years
		return errors.New(errors.ErrCodeInvalidInput, "retention days too large (max 3650)")
	}

	return nil
}
