package verifymind

import (
	"testing"
	"time"
)

func TestNewClientWithOptions(t *testing.T) {
	c := NewClient(
		WithUserAgent("test-ua"),
		WithFreshness(time.Minute),
		WithOracle(nil),
		WithAttestor(nil),
		WithStream(nil),
	)
	if c.Config.UserAgent != "test-ua" {
		t.Errorf("WithUserAgent failed")
	}
	if c.Config.Freshness != time.Minute {
		t.Errorf("WithFreshness failed")
	}
	if c.Oracle == nil {
		t.Errorf("default oracle client missing")
	}
	if c.Attestor == nil {
		t.Errorf("default attestor missing")
	}
}

func TestNewClientDefaultsToLocalEnclave(t *testing.T) {
	c, err := NewClientE()
	if err != nil {
		t.Fatalf("NewClientE failed: %v", err)
	}
	if c.Attestor == nil {
		t.Fatal("expected local enclave attestor")
	}
}

func TestNewClientEReportsStreamInitFailure(t *testing.T) {
	c, err := NewClientE(WithStreamURL("http://not-a-ws-url"))
	if err == nil {
		t.Fatal("expected aggregated init error")
	}
	if len(c.InitErrors) == 0 {
		t.Fatal("expected recorded init error")
	}
	var found bool
	for _, ie := range c.InitErrors {
		if initErr, ok := ie.(*InitError); ok && initErr.Component == "stream" {
			found = true
		}
	}
	if !found {
		t.Errorf("stream init error not recorded: %v", c.InitErrors)
	}
}
