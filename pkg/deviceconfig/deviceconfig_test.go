package deviceconfig

import (
	"os"
	"path/filepath"
	"testing"
)

func TestSetPluginAndOverride(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(StoreConfig{Path: filepath.Join(dir, "devices.json")})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	if _, ok := s.PluginOverride("device-1", "battery"); ok {
		t.Fatalf("expected no override in empty store")
	}

	if err := s.SetPlugin("device-1", "battery", false); err != nil {
		t.Fatalf("SetPlugin: %v", err)
	}

	enabled, ok := s.PluginOverride("device-1", "battery")
	if !ok || enabled {
		t.Fatalf("got (enabled=%v ok=%v), want (false, true)", enabled, ok)
	}
}

func TestSetMACAddressRoundTrip(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(StoreConfig{Path: filepath.Join(dir, "devices.json")})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	if mac := s.MACAddress("device-1"); mac != "" {
		t.Fatalf("got %q, want empty string for unknown device", mac)
	}

	if err := s.SetMACAddress("device-1", "aa:bb:cc:dd:ee:ff"); err != nil {
		t.Fatalf("SetMACAddress: %v", err)
	}
	if mac := s.MACAddress("device-1"); mac != "aa:bb:cc:dd:ee:ff" {
		t.Fatalf("got %q", mac)
	}
}

func TestStorePersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "devices.json")

	s, err := Open(StoreConfig{Path: path})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := s.SetPlugin("device-1", "ping", true); err != nil {
		t.Fatalf("SetPlugin: %v", err)
	}
	if err := s.SetMACAddress("device-1", "11:22:33:44:55:66"); err != nil {
		t.Fatalf("SetMACAddress: %v", err)
	}

	reopened, err := Open(StoreConfig{Path: path})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	enabled, ok := reopened.PluginOverride("device-1", "ping")
	if !ok || !enabled {
		t.Fatalf("got (enabled=%v ok=%v), want (true, true)", enabled, ok)
	}
	if mac := reopened.MACAddress("device-1"); mac != "11:22:33:44:55:66" {
		t.Fatalf("got %q", mac)
	}
}

func TestGetAndSnapshotAreIndependentCopies(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(StoreConfig{Path: filepath.Join(dir, "devices.json")})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := s.SetPlugin("device-1", "battery", true); err != nil {
		t.Fatalf("SetPlugin: %v", err)
	}

	e := s.Get("device-1")
	e.Plugins["battery"] = false

	enabled, ok := s.PluginOverride("device-1", "battery")
	if !ok || !enabled {
		t.Fatalf("Get mutation leaked into store: enabled=%v ok=%v", enabled, ok)
	}

	snap := s.Snapshot()
	snap["device-1"].MACAddress = "tampered"
	if mac := s.MACAddress("device-1"); mac == "tampered" {
		t.Fatalf("snapshot mutation leaked into store")
	}
}

func TestOpenRejectsCorruptJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "devices.json")
	if err := os.WriteFile(path, []byte("not json"), 0o600); err != nil {
		t.Fatalf("write corrupt file: %v", err)
	}
	if _, err := Open(StoreConfig{Path: path}); err == nil {
		t.Fatal("expected error for corrupt device config store")
	}
}
