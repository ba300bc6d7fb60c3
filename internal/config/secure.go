// Copyright (C) 2025 Ariel Frischer
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"

	"github.com/zalando/go-keyring"
)

const (
	keyringService = "giteawatch"
	keyringAccount = "access-token"

	encryptedTokenFile = ".token.enc"
)

// Token storage strategy:
// 1. Environment variable (GITEAWATCH_TOKEN) - CI/CD, containers
// 2. System keyring - macOS/Windows or Linux with a desktop session
// 3. Encrypted file (AES-256-GCM) - universal fallback
//
// Headless Linux defaults to the encrypted file; desktop keyrings are
// unreliable outside desktop sessions.

// SecureStorage is the credential-store collaborator: async get/set/
// delete of a single bearer token under a fixed key.
type SecureStorage struct {
	useKeyring bool
	configDir  string
}

// NewSecureStorage creates a secure storage instance.
func NewSecureStorage() *SecureStorage {
	return &SecureStorage{
		useKeyring: isKeyringAvailable(),
		configDir:  ConfigDir(),
	}
}

// SaveToken securely stores the access token.
func (s *SecureStorage) SaveToken(token string) error {
	if token == "" {
		return fmt.Errorf("token cannot be empty")
	}

	if s.useKeyring {
		if err := keyring.Set(keyringService, keyringAccount, token); err == nil {
			return nil
		}
		// Keyring failure falls through to the encrypted file.
	}

	return s.saveEncryptedToken(token)
}

// GetToken retrieves the access token. The environment variable wins.
func (s *SecureStorage) GetToken() (string, error) {
	if envToken := os.Getenv(EnvToken); envToken != "" {
		return envToken, nil
	}

	if s.useKeyring {
		token, err := keyring.Get(keyringService, keyringAccount)
		if err == nil && token != "" {
			return token, nil
		}
	}

	token, err := s.getEncryptedToken()
	if err == nil && token != "" {
		return token, nil
	}

	return "", fmt.Errorf("access token not found. Please run 'giteawatch login'")
}

// DeleteToken removes the token from every storage location.
func (s *SecureStorage) DeleteToken() error {
	var failures []string
	var removedAny bool

	if s.useKeyring {
		if err := keyring.Delete(keyringService, keyringAccount); err != nil {
			if err != keyring.ErrNotFound && !isKeyringServiceError(err) {
				failures = append(failures, fmt.Sprintf("keyring: %v", err))
			}
		} else {
			removedAny = true
		}
	}

	tokenFile := filepath.Join(s.configDir, encryptedTokenFile)
	if err := os.Remove(tokenFile); err != nil {
		if !os.IsNotExist(err) {
			failures = append(failures, fmt.Sprintf("encrypted file: %v", err))
		}
	} else {
		removedAny = true
	}

	if len(failures) > 0 && !removedAny {
		return fmt.Errorf("failed to remove token: %s", failures[0])
	}
	return nil
}

func isKeyringServiceError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return errStr == "The name is not activatable" ||
		errStr == "Cannot autolaunch D-Bus without X11 $DISPLAY" ||
		errStr == "The name org.freedesktop.secrets was not provided by any .service files"
}

func (s *SecureStorage) saveEncryptedToken(token string) error {
	if err := os.MkdirAll(s.configDir, 0o700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	encrypted, err := encrypt([]byte(token), s.encryptionKey())
	if err != nil {
		return fmt.Errorf("failed to encrypt token: %w", err)
	}

	tokenFile := filepath.Join(s.configDir, encryptedTokenFile)
	if err := os.WriteFile(tokenFile, []byte(encrypted), 0o600); err != nil {
		return fmt.Errorf("failed to save encrypted token: %w", err)
	}
	return nil
}

func (s *SecureStorage) getEncryptedToken() (string, error) {
	tokenFile := filepath.Join(s.configDir, encryptedTokenFile)

	data, err := os.ReadFile(tokenFile)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("failed to read encrypted token: %w", err)
	}

	decrypted, err := decrypt(string(data), s.encryptionKey())
	if err != nil {
		return "", fmt.Errorf("failed to decrypt token: %w", err)
	}
	return string(decrypted), nil
}

// encryptionKey derives a machine-specific key so the encrypted file
// is not portable between machines or users.
func (s *SecureStorage) encryptionKey() []byte {
	var parts []string

	if hostname, err := os.Hostname(); err == nil && hostname != "" {
		parts = append(parts, hostname)
	}
	if username := os.Getenv("USER"); username != "" {
		parts = append(parts, username)
	} else if username := os.Getenv("USERNAME"); username != "" {
		parts = append(parts, username)
	}
	if home, err := os.UserHomeDir(); err == nil {
		parts = append(parts, home)
	}
	if runtime.GOOS == "linux" {
		if machineID, err := os.ReadFile("/etc/machine-id"); err == nil {
			parts = append(parts, string(machineID))
		} else if machineID, err := os.ReadFile("/var/lib/dbus/machine-id"); err == nil {
			parts = append(parts, string(machineID))
		}
	}
	parts = append(parts, "giteawatch-2025-secure")

	hash := sha256.Sum256([]byte(fmt.Sprintf("%s", parts)))
	return hash[:]
}

// isKeyringAvailable reports whether the system keyring is reliable on
// this machine.
func isKeyringAvailable() bool {
	switch runtime.GOOS {
	case "darwin", "windows":
		return true
	case "linux":
		if os.Getenv("SSH_CONNECTION") != "" || os.Getenv("CONTAINER") != "" {
			return false
		}
		if _, err := os.Stat("/.dockerenv"); err == nil {
			return false
		}
		if os.Getenv("KUBERNETES_SERVICE_HOST") != "" {
			return false
		}

		hasDesktop := os.Getenv("DESKTOP_SESSION") != "" ||
			os.Getenv("GNOME_DESKTOP_SESSION_ID") != "" ||
			os.Getenv("KDE_FULL_SESSION") != "" ||
			os.Getenv("XDG_CURRENT_DESKTOP") != ""
		hasDisplay := os.Getenv("DISPLAY") != "" || os.Getenv("WAYLAND_DISPLAY") != ""

		return hasDesktop && hasDisplay
	default:
		return false
	}
}

func encrypt(data []byte, key []byte) (string, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}

	ciphertext := gcm.Seal(nonce, nonce, data, nil)
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

func decrypt(encrypted string, key []byte) ([]byte, error) {
	ciphertext, err := base64.StdEncoding.DecodeString(encrypted)
	if err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	nonceSize := gcm.NonceSize()
	if len(ciphertext) < nonceSize {
		return nil, fmt.Errorf("ciphertext too short")
	}

	nonce, ciphertext := ciphertext[:nonceSize], ciphertext[nonceSize:]
	return gcm.Open(nil, nonce, ciphertext, nil)
}
