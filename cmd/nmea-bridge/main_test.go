package main

import (
	"bytes"
	"strings"
	"testing"
)

func TestRun_Version(t *testing.T) {
	var out, errOut bytes.Buffer
	if err := run([]string{"--version"}, &out, &errOut); err != nil {
		t.Fatalf("run() error: %v", err)
	}
	if strings.TrimSpace(out.String()) != version {
		t.Fatalf("stdout=%q want %q", out.String(), version)
	}
}

func TestRun_Summarize(t *testing.T) {
	path := writeTestLog(t, testRMC, testGGA)
	var out, errOut bytes.Buffer
	if err := run([]string{"--summarize", path}, &out, &errOut); err != nil {
		t.Fatalf("run() error: %v", err)
	}
	if !strings.Contains(out.String(), "fixes: 1") {
		t.Fatalf("stdout=%q", out.String())
	}
}

func TestRun_BadConfig(t *testing.T) {
	var out, errOut bytes.Buffer
	err := run([]string{"--config", "/nonexistent/nmea-bridge.yaml"}, &out, &errOut)
	if err == nil || !strings.Contains(err.Error(), "config load failed") {
		t.Fatalf("err=%v", err)
	}
	err = run([]string{"--log-level", "loud"}, &out, &errOut)
	if err == nil || !strings.Contains(err.Error(), "log.level") {
		t.Fatalf("err=%v", err)
	}
}

func TestRun_UnknownFlag(t *testing.T) {
	var out, errOut bytes.Buffer
	if err := run([]string{"--bogus"}, &out, &errOut); err == nil {
		t.Fatalf("expected error")
	}
	if err := run([]string{"--help"}, &out, &errOut); err != nil {
		t.Fatalf("--help error: %v", err)
	}
}
