package provider

import (
	"errors"
	"fmt"
)

// SimulatedMarker prefixes every locally synthesized reply.
const SimulatedMarker = "[simulated reply]"

const credentialHint = "\n\nPlease check your API key settings."

// SimulatedReply is the placeholder used when a best-effort send fails.
func SimulatedReply(text string) string {
	return fmt.Sprintf("%s You sent: %q. The real AI service could not be reached "+
		"(insufficient account balance or another provider error).", SimulatedMarker, text)
}

// Fallback picks the simulated reply for err. Credential problems get an
// extra hint pointing at the settings.
func Fallback(text string, err error) string {
	var invalid *InvalidCredentialError
	if errors.As(err, &invalid) {
		return SimulatedReply(text) + credentialHint
	}
	return SimulatedReply(text)
}
