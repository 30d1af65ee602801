package config

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
)

// resetGlobals clears the process-wide configuration for a test.
func resetGlobals(t *testing.T) {
	t.Helper()
	configMutex.Lock()
	globalConfig = nil
	globalPath = ""
	configMutex.Unlock()
	initOnce = sync.Once{}
	t.Cleanup(func() {
		configMutex.Lock()
		globalConfig = nil
		globalPath = ""
		configMutex.Unlock()
		initOnce = sync.Once{}
	})
}

func TestInitialize(t *testing.T) {
	resetGlobals(t)
	path := writeConfigFile(t, validConfigYAML)

	if err := Initialize(path); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	cfg := GetConfig()
	if cfg == nil {
		t.Fatal("Expected config after Initialize")
	}
	if _, ok := cfg.Limits["api"]; !ok {
		t.Error("Expected api limiter in global config")
	}
	if ConfigPath() != path {
		t.Errorf("Expected config path %q, got %q", path, ConfigPath())
	}
}

func TestInitialize_OnlyOnce(t *testing.T) {
	resetGlobals(t)
	first := writeConfigFile(t, validConfigYAML)
	second := writeConfigFile(t, "limits:\n  other:\n    limit: 1\n    interval: 1s\n")

	if err := Initialize(first); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if err := Initialize(second); err != nil {
		t.Fatalf("Expected second Initialize to be ignored, got %v", err)
	}

	if _, ok := GetConfig().Limits["other"]; ok {
		t.Error("Expected second Initialize to be ignored")
	}
}

func TestInitialize_Error(t *testing.T) {
	resetGlobals(t)

	if err := Initialize(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("Expected error for missing file")
	}
	if GetConfig() != nil {
		t.Error("Expected no config after failed Initialize")
	}
}

func TestSetConfig(t *testing.T) {
	resetGlobals(t)

	cfg := MinimalConfig()
	SetConfig(cfg)
	if GetConfig() != cfg {
		t.Error("Expected GetConfig to return the set config")
	}
}

func TestReloadConfig(t *testing.T) {
	resetGlobals(t)
	path := writeConfigFile(t, validConfigYAML)
	if err := Initialize(path); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	updated := "limits:\n  api:\n    limit: 7\n    interval: 1s\n"
	if err := os.WriteFile(path, []byte(updated), 0644); err != nil {
		t.Fatalf("failed to rewrite config: %v", err)
	}

	cfg, err := ReloadConfig(path)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if cfg.Limits["api"].Limit != 7 {
		t.Errorf("Expected reloaded limit 7, got %d", cfg.Limits["api"].Limit)
	}
	if GetConfig() != cfg {
		t.Error("Expected reload to replace global config")
	}
}

func TestReloadConfig_KeepsPreviousOnError(t *testing.T) {
	resetGlobals(t)
	path := writeConfigFile(t, validConfigYAML)
	if err := Initialize(path); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	before := GetConfig()

	if err := os.WriteFile(path, []byte("limits:\n  api:\n    limit: 0\n    interval: 1s\n"), 0644); err != nil {
		t.Fatalf("failed to rewrite config: %v", err)
	}

	if _, err := ReloadConfig(path); err == nil {
		t.Fatal("Expected reload error")
	}
	if GetConfig() != before {
		t.Error("Expected previous config to be kept")
	}
}

func TestMustGetConfig_Panics(t *testing.T) {
	resetGlobals(t)

	defer func() {
		if r := recover(); r == nil {
			t.Error("Expected panic when config is not initialized")
		}
	}()
	MustGetConfig()
}

func TestGetConfig_Concurrent(t *testing.T) {
	resetGlobals(t)
	SetConfig(MinimalConfig())

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = GetConfig()
		}()
		go func() {
			defer wg.Done()
			SetConfig(MinimalConfig())
		}()
	}
	wg.Wait()
}
