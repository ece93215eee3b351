package cmd

import (
	"testing"

	"github.com/urfave/cli/v2"
)

func hasFlag(flags []cli.Flag, name string) bool {
	for _, f := range flags {
		if f.Names()[0] == name {
			return true
		}
	}
	return false
}

func TestReadOnlyFlags_IncludesTUI(t *testing.T) {
	if !hasFlag(ReadOnlyFlags(), "tui") {
		t.Error("ReadOnlyFlags should include --tui flag for explicit error handling")
	}
}

func TestTUIReadOnlyFlags_IncludesTUI(t *testing.T) {
	if !hasFlag(TUIReadOnlyFlags(), "tui") {
		t.Error("TUIReadOnlyFlags should include --tui flag")
	}
}

func TestStorageFlags(t *testing.T) {
	for _, name := range []string{
		"storage-dataset", "storage-backend", "storage-path",
		"storage-region", "storage-endpoint", "storage-s3-path-style",
	} {
		if !hasFlag(StorageFlags(), name) {
			t.Errorf("StorageFlags missing --%s", name)
		}
	}
}

func TestCommands_HaveStorageFlags(t *testing.T) {
	for _, c := range []*cli.Command{RunCommand(), InspectCommand(), StatsCommand()} {
		if !hasFlag(c.Flags, "storage-backend") {
			t.Errorf("%s command missing --storage-backend", c.Name)
		}
	}
}

func TestIsStderrTTY(_ *testing.T) {
	// Actual TTY behavior depends on runtime environment.
	_ = isStderrTTY()
}
