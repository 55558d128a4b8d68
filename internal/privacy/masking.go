package privacy

import (
	"strings"
)

// MaskPhoneNumber masks a phone number showing only the last 4 digits
// Example: "+1234567890" -> "+******7890"
func MaskPhoneNumber(phone string) string {
	if phone == "" {
		return ""
	}

	// Handle + prefix numbers specially
	if strings.HasPrefix(phone, "+") {
		if len(phone) == 1 { // Just "+"
			return phone
		}
		if len(phone) <= 5 { // "+1234" or shorter
			return "+" + strings.Repeat("*", len(phone)-1)
		}
		return "+" + strings.Repeat("*", len(phone)-5) + phone[len(phone)-4:]
	}

	// For numbers without + prefix
	if len(phone) <= 4 {
		return strings.Repeat("*", len(phone))
	}
	return strings.Repeat("*", len(phone)-4) + phone[len(phone)-4:]
}

// MaskChatID masks a numeric chat identifier, preserving the sign prefix
// that distinguishes channels and groups from direct chats
// Example: "-1001234567890" -> "-100******7890"
func MaskChatID(chatID string) string {
	if chatID == "" {
		return ""
	}

	// Channel and supergroup IDs carry a -100 prefix worth keeping
	if strings.HasPrefix(chatID, "-100") && len(chatID) > 8 {
		body := chatID[4:]
		return "-100" + strings.Repeat("*", len(body)-4) + body[len(body)-4:]
	}

	if strings.HasPrefix(chatID, "-") {
		return "-" + maskString(chatID[1:], 4)
	}

	return maskString(chatID, 4)
}

// MaskBotToken masks a bot token while keeping the numeric bot ID visible
// Example: "123456789:AAEhBOweik6ad9r_QXMENQjcrGbqCr4K-bk" -> "123456789:****-bk"
func MaskBotToken(token string) string {
	if token == "" {
		return ""
	}

	if idx := strings.Index(token, ":"); idx > 0 {
		return token[:idx] + ":****" + lastChars(token[idx+1:], 3)
	}

	return maskString(token, 3)
}

// MaskUserID masks a user identifier
// Example: "user123456" -> "****3456"
func MaskUserID(userID string) string {
	if userID == "" {
		return ""
	}
	return maskString(userID, 4)
}

// MaskArtifactName masks a session artifact file name while keeping the
// extension readable for debugging
// Example: "user-123456.session" -> "****3456.session"
func MaskArtifactName(name string) string {
	if name == "" {
		return ""
	}

	if idx := strings.LastIndex(name, "."); idx > 0 {
		return maskString(name[:idx], 4) + name[idx:]
	}

	return maskString(name, 4)
}

// maskString masks a string showing only the last n characters
func maskString(s string, keepLast int) string {
	if s == "" {
		return ""
	}

	if len(s) <= keepLast {
		return strings.Repeat("*", len(s))
	}

	return strings.Repeat("*", len(s)-keepLast) + s[len(s)-keepLast:]
}

// lastChars returns the trailing n characters without any padding
func lastChars(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}

// MaskSensitiveFields applies appropriate masking to common logging fields
func MaskSensitiveFields(fields map[string]interface{}) map[string]interface{} {
	if fields == nil {
		return nil
	}

	masked := make(map[string]interface{})
	for k, v := range fields {
		switch k {
		case "phone", "phone_number":
			if s, ok := v.(string); ok {
				masked[k] = MaskPhoneNumber(s)
			} else {
				masked[k] = v
			}
		case "chat_id", "chatId", "source_chat", "target_chat":
			if s, ok := v.(string); ok {
				masked[k] = MaskChatID(s)
			} else {
				masked[k] = v
			}
		case "token", "bot_token", "api_key":
			if s, ok := v.(string); ok {
				masked[k] = MaskBotToken(s)
			} else {
				masked[k] = v
			}
		case "artifact", "artifact_name":
			if s, ok := v.(string); ok {
				masked[k] = MaskArtifactName(s)
			} else {
				masked[k] = v
			}
		default:
			masked[k] = v
		}
	}

	return masked
}
