package assets

import (
	"embed"
)

//go:embed tuning.yaml
var FS embed.FS

// DefaultTuning returns the built-in board tuning document.
func DefaultTuning() ([]byte, error) {
	return FS.ReadFile("tuning.yaml")
}
