//go:build unix

package cmd

import (
	"os"
	"strings"
	"syscall"
	"testing"
	"time"
)

func TestCommandContextCancelledBySignal(t *testing.T) {
	ctx, stop := commandContext()
	defer stop()

	if err := syscall.Kill(os.Getpid(), syscall.SIGTERM); err != nil {
		t.Fatalf("sending SIGTERM: %v", err)
	}

	select {
	case <-ctx.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("context was not cancelled by SIGTERM")
	}
}

func TestConfigValidateCollectsErrors(t *testing.T) {
	c := &Config{
		Geocoding: &GeocodingConfig{Provider: "bing", RateLimit: -1},
		AI:        &AIConfig{Enabled: true, MinimumScore: 120},
	}

	err := c.Validate()
	if err == nil {
		t.Fatalf("expected validation errors")
	}
	for _, want := range []string{"geocoding.provider", "geocoding.rate-limit", "ai.minimum-score"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("expected %q in %q", want, err.Error())
		}
	}
}
