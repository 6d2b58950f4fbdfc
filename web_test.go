package main

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestDrainErrorsStops(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)

	errs := make(chan error, 4)
	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		drainErrors(zap.New(core), errs, stop)
		close(done)
	}()

	errs <- errors.New("broken pipe")

	deadline := time.Now().Add(2 * time.Second)
	for logs.FilterMessage("SERVE: write failed").Len() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("write failure never logged")
		}
		time.Sleep(5 * time.Millisecond)
	}

	close(stop)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("drain goroutine still running after stop")
	}
}

func TestLoadRulesRunsScript(t *testing.T) {
	dir := t.TempDir()

	failing := filepath.Join(dir, "failing.lua")
	if err := os.WriteFile(failing, []byte(`function ai_intent() error("boom") end`), 0o644); err != nil {
		t.Fatal(err)
	}
	rules := filepath.Join(dir, "rules.toml")
	body := "[ai]\npolicy = \"script\"\nscript = \"" + filepath.ToSlash(failing) + "\"\n"
	if err := os.WriteFile(rules, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := loadRules(&Config{rules: rules}); err == nil {
		t.Error("rules with a failing ai script loaded")
	}

	if _, err := loadRules(&Config{}); err != nil {
		t.Errorf("default rules: %v", err)
	}
}
