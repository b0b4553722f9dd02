// Package artifacts names and stores diagnostic screenshots.
package artifacts

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mitchellh/go-homedir"
	"go.uber.org/zap"

	"github.com/xkilldash9x/autologin-cli/internal/config"
)

const maxIdentityLen = 64

// Store resolves artifact paths under one directory. A disabled store hands
// out no paths and callers skip capturing.
type Store struct {
	dir     string
	enabled bool
	logger  *zap.Logger
}

// New expands the configured directory. The directory itself is created on
// first write by whoever writes there.
func New(cfg config.ArtifactsConfig, logger *zap.Logger) (*Store, error) {
	dir := cfg.Dir
	if dir == "" {
		dir = "./artifacts"
	}
	expanded, err := homedir.Expand(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to expand artifacts.dir %q: %w", cfg.Dir, err)
	}
	return &Store{dir: filepath.Clean(expanded), enabled: cfg.Enabled, logger: logger.Named("artifacts")}, nil
}

func (s *Store) Enabled() bool { return s != nil && s.enabled }

func (s *Store) Dir() string { return s.dir }

// SanitizeIdentity makes an account identity safe for a file name.
func SanitizeIdentity(identity string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(identity)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '.', r == '-':
			b.WriteRune(r)
		case r == '@':
			b.WriteString("_at_")
		default:
			b.WriteRune('_')
		}
	}
	out := b.String()
	if len(out) > maxIdentityLen {
		out = out[:maxIdentityLen]
	}
	if out == "" {
		out = "unknown"
	}
	return out
}

// Name is the deterministic file name for one capture. First attempts carry
// no retry suffix.
func Name(stage string, accountIndex int, identity string, retryIndex int) string {
	name := fmt.Sprintf("%s_%d_%s", stage, accountIndex, SanitizeIdentity(identity))
	if retryIndex > 0 {
		name += fmt.Sprintf("_retry%d", retryIndex)
	}
	return name + ".png"
}

// Path joins Name onto the store directory, or returns "" when disabled.
func (s *Store) Path(stage string, accountIndex int, identity string, retryIndex int) string {
	if !s.Enabled() {
		return ""
	}
	return filepath.Join(s.dir, Name(stage, accountIndex, identity, retryIndex))
}

// Read loads a capture back for the notifier. A missing or empty file yields
// nil, never an error the caller has to branch on.
func (s *Store) Read(path string) []byte {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		s.logger.Debug("Artifact unavailable", zap.String("path", path), zap.Error(err))
		return nil
	}
	if len(data) == 0 {
		return nil
	}
	return data
}
