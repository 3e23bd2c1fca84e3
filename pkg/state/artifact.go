package state

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// resolveArtifactRoot reads AGENTBOARD_ARTIFACT_ROOT (or the CI-provided
// TEST_ARTIFACTS_ROOT) once and normalizes it to an absolute path. Empty
// means no artifact root is configured and callers use their defaults.
var resolveArtifactRoot = sync.OnceValue(func() string {
	for _, env := range []string{"AGENTBOARD_ARTIFACT_ROOT", "TEST_ARTIFACTS_ROOT"} {
		v := strings.TrimSpace(os.Getenv(env))
		if v == "" {
			continue
		}
		if abs, err := filepath.Abs(v); err == nil {
			return abs
		}
		return v
	}
	return ""
})

// ArtifactRoot returns the configured artifact base directory, or "".
func ArtifactRoot() string { return resolveArtifactRoot() }

// ArtifactPath joins the artifact root with path elements, returning ""
// when no root is configured so callers can fall through.
func ArtifactPath(elem ...string) string {
	root := ArtifactRoot()
	if root == "" {
		return ""
	}
	return filepath.Join(append([]string{root}, elem...)...)
}
