package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func resetLoggingState() {
	CloseAll()
	loggers = make(map[Category]*Logger)
	logsDir = ""
	workspace = ""
	config = loggingConfig{}
}

// TestAllCategoriesLog tests that all categories create log files when debug_mode is true
func TestAllCategoriesLog(t *testing.T) {
	tempDir := t.TempDir()

	configDir := filepath.Join(tempDir, ".photoforge")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		t.Fatalf("Failed to create config dir: %v", err)
	}

	configContent := `{
		"logging": {
			"level": "debug",
			"debug_mode": true
		}
	}`

	configPath := filepath.Join(configDir, "config.json")
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	resetLoggingState()
	defer resetLoggingState()

	if err := Initialize(tempDir); err != nil {
		t.Fatalf("Failed to initialize logging: %v", err)
	}

	if !IsDebugMode() {
		t.Error("Expected debug mode to be enabled")
	}

	categories := []Category{
		CategoryBoot,
		CategoryCapture,
		CategoryReconstruct,
		CategoryHandoff,
		CategoryCatalog,
		CategoryWatcher,
	}

	for _, cat := range categories {
		Get(cat).Info("test message for %s", cat)
	}
	CloseAll()

	entries, err := os.ReadDir(filepath.Join(tempDir, ".photoforge", "logs"))
	if err != nil {
		t.Fatalf("Failed to read logs dir: %v", err)
	}

	for _, cat := range categories {
		found := false
		for _, e := range entries {
			if strings.Contains(e.Name(), string(cat)) {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("No log file created for category %s", cat)
		}
	}
}

// TestProductionModeIsSilent verifies no logs directory appears without a config.
func TestProductionModeIsSilent(t *testing.T) {
	tempDir := t.TempDir()

	resetLoggingState()
	defer resetLoggingState()

	if err := Initialize(tempDir); err != nil {
		t.Fatalf("Failed to initialize logging: %v", err)
	}

	if IsDebugMode() {
		t.Error("Expected debug mode to be disabled without a config file")
	}

	Capture("this should be a no-op")
	Reconstruct("so should this")

	if _, err := os.Stat(filepath.Join(tempDir, ".photoforge", "logs")); !os.IsNotExist(err) {
		t.Error("Logs directory should not exist in production mode")
	}
}

// TestCategoryFilter verifies per-category disable.
func TestCategoryFilter(t *testing.T) {
	tempDir := t.TempDir()

	configDir := filepath.Join(tempDir, ".photoforge")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		t.Fatalf("Failed to create config dir: %v", err)
	}

	configContent := `{
		"logging": {
			"level": "debug",
			"debug_mode": true,
			"categories": {
				"capture": true,
				"watcher": false
			}
		}
	}`

	if err := os.WriteFile(filepath.Join(configDir, "config.json"), []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	resetLoggingState()
	defer resetLoggingState()

	if err := Initialize(tempDir); err != nil {
		t.Fatalf("Failed to initialize logging: %v", err)
	}

	if !IsCategoryEnabled(CategoryCapture) {
		t.Error("capture category should be enabled")
	}
	if IsCategoryEnabled(CategoryWatcher) {
		t.Error("watcher category should be disabled")
	}
}
