package sshutil

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/ssh"
)

// LoadPrivateKey reads an unencrypted SSH private key from disk. A leading
// "~/" is expanded to the current user's home directory.
func LoadPrivateKey(path string) (ssh.Signer, error) {
	key, err := readKey(path)
	if err != nil {
		return nil, err
	}
	signer, err := ssh.ParsePrivateKey(key)
	if err != nil {
		var missing *ssh.PassphraseMissingError
		if errors.As(err, &missing) {
			return nil, fmt.Errorf("SSH key at %s is passphrase protected; load it into an agent or use an unencrypted deploy key", path)
		}
		return nil, fmt.Errorf("failed to parse SSH key: %w", err)
	}
	return signer, nil
}

func readKey(path string) ([]byte, error) {
	if path == "" {
		return nil, fmt.Errorf("no SSH key path configured")
	}
	if rest, ok := strings.CutPrefix(path, "~/"); ok {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolve home directory: %w", err)
		}
		path = filepath.Join(home, rest)
	}
	key, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read SSH key at %s: %w", path, err)
	}
	return key, nil
}
