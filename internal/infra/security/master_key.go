package security

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"school-payments/internal/config"
)

// KeyWrapper is the envelope-encryption service used for the data key (AWS KMS in production).
type KeyWrapper interface {
	GenerateDataKey(ctx context.Context) (plaintext, wrapped []byte, err error)
	Unwrap(ctx context.Context, wrapped []byte) ([]byte, error)
}

// MasterKeyLoader resolves the config master key. First hit wins:
//  1. the configured env var, base64 or a raw 32-byte string
//  2. KMS-wrapped data key stored at KeyFile (generated on first run)
//  3. raw key at KeyFile, created with mode 0600 on first run
type MasterKeyLoader struct {
	cfg     config.SecurityConfig
	wrapper KeyWrapper
	log     *zerolog.Logger
	getenv  func(string) string
}

// NewMasterKeyLoader: wrapper may be nil when KMS is not configured.
func NewMasterKeyLoader(cfg config.SecurityConfig, wrapper KeyWrapper, logger *zerolog.Logger) *MasterKeyLoader {
	l := logger.With().Str("component", "master_key").Logger()
	return &MasterKeyLoader{cfg: cfg, wrapper: wrapper, log: &l, getenv: os.Getenv}
}

func (m *MasterKeyLoader) Load(ctx context.Context) ([]byte, error) {
	if m.cfg.MasterKeyEnv != "" {
		if v := strings.TrimSpace(m.getenv(m.cfg.MasterKeyEnv)); v != "" {
			key, err := parseEnvKey(v)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", m.cfg.MasterKeyEnv, err)
			}
			m.log.Info().Str("source", "env").Msg("master key loaded")
			return key, nil
		}
	}
	if m.wrapper != nil {
		key, err := m.loadWrapped(ctx)
		if err != nil {
			return nil, err
		}
		m.log.Info().Str("source", "kms").Msg("master key loaded")
		return key, nil
	}
	key, err := m.loadFile()
	if err != nil {
		return nil, err
	}
	m.log.Warn().Str("source", "file").Str("path", m.cfg.KeyFile).Msg("master key loaded from local file; use env or KMS in production")
	return key, nil
}

// parseEnvKey accepts base64 of 32 bytes first, then a raw 32-byte value.
func parseEnvKey(v string) ([]byte, error) {
	key, decErr := base64.StdEncoding.DecodeString(v)
	if decErr == nil && len(key) == MasterKeySize {
		return key, nil
	}
	if len(v) == MasterKeySize {
		return []byte(v), nil
	}
	if decErr != nil {
		return nil, fmt.Errorf("%w: not base64 and not %d raw bytes", ErrInvalidKeySize, MasterKeySize)
	}
	return nil, ErrInvalidKeySize
}

func (m *MasterKeyLoader) loadWrapped(ctx context.Context) ([]byte, error) {
	wrapped, err := os.ReadFile(m.cfg.KeyFile)
	switch {
	case err == nil:
		key, err := m.wrapper.Unwrap(ctx, wrapped)
		if err != nil {
			return nil, fmt.Errorf("unwrap data key: %w", err)
		}
		if len(key) != MasterKeySize {
			return nil, fmt.Errorf("unwrapped data key: %w", ErrInvalidKeySize)
		}
		return key, nil
	case errors.Is(err, os.ErrNotExist):
		key, wrapped, err := m.wrapper.GenerateDataKey(ctx)
		if err != nil {
			return nil, fmt.Errorf("generate data key: %w", err)
		}
		if err := writeKeyFile(m.cfg.KeyFile, wrapped); err != nil {
			return nil, err
		}
		m.log.Info().Str("path", m.cfg.KeyFile).Msg("generated new KMS data key")
		return key, nil
	default:
		return nil, fmt.Errorf("read wrapped key: %w", err)
	}
}

func (m *MasterKeyLoader) loadFile() ([]byte, error) {
	key, err := os.ReadFile(m.cfg.KeyFile)
	switch {
	case err == nil:
		if len(key) != MasterKeySize {
			return nil, fmt.Errorf("%s: %w", m.cfg.KeyFile, ErrInvalidKeySize)
		}
		return key, nil
	case errors.Is(err, os.ErrNotExist):
		key = make([]byte, MasterKeySize)
		if _, err := io.ReadFull(rand.Reader, key); err != nil {
			return nil, fmt.Errorf("rand key: %w", err)
		}
		if err := writeKeyFile(m.cfg.KeyFile, key); err != nil {
			return nil, err
		}
		return key, nil
	default:
		return nil, fmt.Errorf("read key file: %w", err)
	}
}

// writeKeyFile refuses to overwrite an existing file.
func writeKeyFile(path string, data []byte) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("create key dir: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return fmt.Errorf("create key file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return fmt.Errorf("write key file: %w", err)
	}
	return f.Close()
}

// Zero wipes a key slice.
func Zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
