package generate

import (
	"errors"
	"strings"

	"github.com/daikw/banter/internal/voice/provider"
)

const userMessagePrefix = "Error processing response. "

// UserMessage turns a generation error into the message shown in a chat.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()

	var terr *provider.TransportError
	if errors.As(err, &terr) {
		if terr.IsAuth() {
			return userMessagePrefix + "Please check your API key and try again."
		}
		return userMessagePrefix + "Details: " + msg
	}
	if strings.Contains(msg, "API error") ||
		strings.Contains(msg, "401") ||
		strings.Contains(msg, "403") {
		return userMessagePrefix + "Please check your API key and try again."
	}
	if strings.Contains(msg, "JSON") || strings.Contains(msg, "parse") {
		return userMessagePrefix + "The AI returned invalid JSON format. This may be a provider compatibility issue."
	}
	return userMessagePrefix + "Details: " + msg
}
