package platform

import (
	"os"
)

// Capabilities describes what the host platform supports. Detected once at
// startup; not expected to change mid-session.
type Capabilities struct {
	Background bool // host can run headless/background processing
}

// DetectCapabilities reads the platform capability signal supplied by the
// host process
func DetectCapabilities() Capabilities {
	val := os.Getenv("FORWARDEMAIL_BACKGROUND")
	return Capabilities{
		Background: val == "1" || val == "true",
	}
}
