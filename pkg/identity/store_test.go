package identity

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func TestOpenGeneratesThenReloadsIdentically(t *testing.T) {
	dir := t.TempDir()

	first, err := Open(StoreConfig{Dir: dir, DeviceName: "laptop-1", DeviceType: DeviceTypeLaptop})
	if err != nil {
		t.Fatalf("Open (generate): %v", err)
	}
	if first.Info().DeviceID == "" {
		t.Fatalf("expected generated device id")
	}

	second, err := Open(StoreConfig{Dir: dir})
	if err != nil {
		t.Fatalf("Open (reload): %v", err)
	}

	if second.Info() != first.Info() {
		t.Fatalf("reloaded info %+v, want %+v", second.Info(), first.Info())
	}
	if !bytes.Equal(second.Certificate().CertDER, first.Certificate().CertDER) {
		t.Fatalf("reloaded cert DER differs")
	}
	if !bytes.Equal(second.Certificate().PrivateKeyDER, first.Certificate().PrivateKeyDER) {
		t.Fatalf("reloaded key DER differs")
	}
	if second.Certificate().Fingerprint != first.Certificate().Fingerprint {
		t.Fatalf("reloaded fingerprint differs")
	}
}

func TestFingerprintStableAcrossCalls(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(StoreConfig{Dir: dir})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	fp1 := Fingerprint(s.Certificate().CertDER)
	fp2 := Fingerprint(s.Certificate().CertDER)
	if fp1 != fp2 {
		t.Fatalf("fingerprint not stable: %s vs %s", fp1, fp2)
	}
	if fp1 != s.Certificate().Fingerprint {
		t.Fatalf("stored fingerprint %s does not match recomputed %s", s.Certificate().Fingerprint, fp1)
	}
}

func TestSetDeviceNamePersists(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(StoreConfig{Dir: dir})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	if err := s.SetDeviceName("new-name"); err != nil {
		t.Fatalf("SetDeviceName: %v", err)
	}

	reopened, err := Open(StoreConfig{Dir: dir})
	if err != nil {
		t.Fatalf("Open (reload): %v", err)
	}
	if reopened.Info().DeviceName != "new-name" {
		t.Fatalf("got device name %q, want %q", reopened.Info().DeviceName, "new-name")
	}
	// Device id and certificate are untouched by a name change.
	if reopened.Info().DeviceID != s.Info().DeviceID {
		t.Fatalf("device id changed across SetDeviceName")
	}
}

func TestOpenRejectsCorruptCertificate(t *testing.T) {
	dir := t.TempDir()
	if _, err := Open(StoreConfig{Dir: dir}); err != nil {
		t.Fatalf("Open (generate): %v", err)
	}

	certPath := filepath.Join(dir, "certs", "device.crt")
	if err := os.WriteFile(certPath, []byte("not a pem block"), 0o600); err != nil {
		t.Fatalf("corrupt cert file: %v", err)
	}

	if _, err := Open(StoreConfig{Dir: dir}); err == nil {
		t.Fatalf("expected error opening store with corrupt certificate")
	}
}

func TestOpenRequiresDir(t *testing.T) {
	if _, err := Open(StoreConfig{}); err == nil {
		t.Fatalf("expected error for empty Dir")
	}
}
