package timezone

import (
	"strings"

	"github.com/mssola/useragent"
)

// extensionToken marks requests from the capture extension, which sets
// it in its User-Agent alongside the host browser's string.
const extensionToken = "MeridianCapture"

// ProvenanceFromUserAgent classifies where a timezone declaration came
// from based on the client's User-Agent. The capture extension
// identifies itself with its own token; a recognizable browser means
// the zone came from the client runtime; anything else is treated as a
// manual entry (API clients, scripts).
func ProvenanceFromUserAgent(ua string) Provenance {
	if ua == "" {
		return ProvenanceManual
	}
	if strings.Contains(ua, extensionToken) {
		return ProvenanceExtension
	}

	// The parser reports a "browser" name for any product token, curl
	// included. Real browsers also carry the Mozilla/N.0 preamble, so
	// require both before trusting the classification.
	parsed := useragent.New(ua)
	name, _ := parsed.Browser()
	if name != "" && parsed.Mozilla() != "" && !parsed.Bot() {
		return ProvenanceBrowser
	}
	return ProvenanceManual
}
