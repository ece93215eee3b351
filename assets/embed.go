// Package assets provides the embedded script-side bridge runtime.
//
// The runtime is embedded at build time and evaluated in the page by the
// bridge once the page reports enough load progress. It can also be written
// out for pages that prefer to bundle it themselves.
package assets

import (
	"crypto/sha256"
	_ "embed"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
)

// RuntimeFile is the file name of the script-side runtime.
const RuntimeFile = "WebViewJavascriptBridge.js"

//go:embed WebViewJavascriptBridge.js
var runtimeScript string

// Runtime returns the script-side bridge runtime source.
func Runtime() string {
	return runtimeScript
}

// Size returns the size of the embedded runtime in bytes.
func Size() int {
	return len(runtimeScript)
}

// Checksum returns the SHA256 checksum of the embedded runtime.
func Checksum() string {
	hash := sha256.Sum256([]byte(runtimeScript))
	return hex.EncodeToString(hash[:])
}

// WriteRuntime writes the runtime into dir and returns the file path.
// An existing file of the same size is left in place.
func WriteRuntime(dir string) (string, error) {
	path := filepath.Join(dir, RuntimeFile)

	if info, err := os.Stat(path); err == nil && info.Size() == int64(len(runtimeScript)) {
		return path, nil
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(runtimeScript), 0o644); err != nil { //nolint:gosec // script asset is public
		return "", fmt.Errorf("failed to write runtime: %w", err)
	}
	return path, nil
}
