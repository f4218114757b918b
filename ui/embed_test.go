//go:build !debug

package ui

import (
	"io/fs"
	"strings"
	"testing"
)

// TestDistFSEmbedded verifies that the dashboard is embedded.
func TestDistFSEmbedded(t *testing.T) {
	indexData, err := fs.ReadFile(DistFS(), "index.html")
	if err != nil {
		t.Fatalf("Failed to read index.html from embedded filesystem: %v", err)
	}

	content := string(indexData)
	if !strings.Contains(content, "<!DOCTYPE") && !strings.Contains(content, "<html") {
		t.Error("index.html does not appear to be valid HTML (missing DOCTYPE or <html>)")
	}
}

// TestAssetsDirectoryEmbedded verifies that the assets subdirectory is embedded.
func TestAssetsDirectoryEmbedded(t *testing.T) {
	entries, err := fs.ReadDir(DistFS(), "assets")
	if err != nil {
		t.Fatalf("Failed to read assets directory: %v", err)
	}

	foundReadableFile := false
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		data, err := fs.ReadFile(DistFS(), "assets/"+entry.Name())
		if err == nil && len(data) > 0 {
			foundReadableFile = true
			break
		}
	}
	if !foundReadableFile {
		t.Error("Could not read any files from assets directory")
	}
}
