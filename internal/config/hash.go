package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/zeebo/blake3"
)

// sidecarSuffix is appended to the config path to form the checksum sidecar.
const sidecarSuffix = ".checksum"

// ComputeBlake3Hash computes the BLAKE3 hash of a file.
func ComputeBlake3Hash(filePath string) (string, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to read file: %w", err)
	}

	hash := blake3.Sum256(data)
	return hex.EncodeToString(hash[:]), nil
}

// WriteSidecar computes the config file's hash and writes it to the
// checksum sidecar next to it. Returns the sidecar path.
func WriteSidecar(configPath string) (string, error) {
	hash, err := ComputeBlake3Hash(configPath)
	if err != nil {
		return "", err
	}

	sidecar := configPath + sidecarSuffix
	content := fmt.Sprintf("%s  %s\n", hash, filepath.Base(configPath))
	if err := os.WriteFile(sidecar, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("write checksum sidecar: %w", err)
	}
	return sidecar, nil
}

// VerifySidecar checks the config file against its checksum sidecar.
// A missing sidecar is not an error; integrity checking is opt-in.
func VerifySidecar(configPath string) error {
	sidecar := configPath + sidecarSuffix
	data, err := os.ReadFile(sidecar)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read checksum sidecar: %w", err)
	}

	fields := strings.Fields(string(data))
	if len(fields) == 0 {
		return fmt.Errorf("checksum sidecar %s is empty", sidecar)
	}
	expected := fields[0]

	actual, err := ComputeBlake3Hash(configPath)
	if err != nil {
		return fmt.Errorf("failed to compute hash: %w", err)
	}
	if actual != expected {
		return fmt.Errorf("hash mismatch for %s: expected %s, got %s\n"+
			"Hint: if the change was intentional, run 'runlet config hash'",
			filepath.Base(configPath), expected, actual)
	}
	return nil
}
