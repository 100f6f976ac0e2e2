package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	t.Setenv("ENV", "")
	t.Setenv("MCAST_ADDR", "")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("REPLAY_LIMIT", "")

	cfg := Load()
	if cfg.MulticastAddr != "239.255.0.1:49600" {
		t.Fatalf("unexpected default addr: %q", cfg.MulticastAddr)
	}
	if cfg.ReplayLimit != 200 {
		t.Fatalf("unexpected default replay limit: %d", cfg.ReplayLimit)
	}
	if !cfg.IsDevelopment() {
		t.Fatal("expected development by default")
	}
}

func TestStatusAddrExplicitlyEmptyDisables(t *testing.T) {
	t.Setenv("STATUS_ADDR", "")

	if cfg := Load(); cfg.StatusAddr != "" {
		t.Fatalf("empty STATUS_ADDR must disable the server, got %q", cfg.StatusAddr)
	}
}

func TestLoadOverridesAndBadInt(t *testing.T) {
	t.Setenv("MCAST_ADDR", "239.1.2.3:5000")
	t.Setenv("REPLAY_LIMIT", "not-a-number")

	cfg := Load()
	if cfg.MulticastAddr != "239.1.2.3:5000" {
		t.Fatalf("override ignored: %q", cfg.MulticastAddr)
	}
	if cfg.ReplayLimit != 200 {
		t.Fatalf("bad int must fall back to default, got %d", cfg.ReplayLimit)
	}
}
