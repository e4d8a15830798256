package crypto

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestEnsureTLSCertificateIsStable(t *testing.T) {
	tempDir := t.TempDir()
	certPath := filepath.Join(tempDir, "cert.pem")
	keyPath := filepath.Join(tempDir, "key.pem")

	first, err := EnsureTLSCertificate(certPath, keyPath, "device-abc")
	if err != nil {
		t.Fatalf("first EnsureTLSCertificate failed: %v", err)
	}
	if first.Leaf.Subject.CommonName != "device-abc" {
		t.Fatalf("unexpected subject CN %q", first.Leaf.Subject.CommonName)
	}
	lifetime := first.Leaf.NotAfter.Sub(first.Leaf.NotBefore)
	if lifetime < 364*24*time.Hour || lifetime > 366*24*time.Hour {
		t.Fatalf("unexpected certificate lifetime %s", lifetime)
	}

	second, err := EnsureTLSCertificate(certPath, keyPath, "ignored-on-reload")
	if err != nil {
		t.Fatalf("second EnsureTLSCertificate failed: %v", err)
	}
	if !bytes.Equal(first.Certificate[0], second.Certificate[0]) {
		t.Fatalf("expected certificate to be reused across runs")
	}
}

func TestLoadTLSCertificateRejectsCorruptFiles(t *testing.T) {
	tempDir := t.TempDir()
	certPath := filepath.Join(tempDir, "cert.pem")
	keyPath := filepath.Join(tempDir, "key.pem")

	if err := os.WriteFile(certPath, []byte("broken"), 0o644); err != nil {
		t.Fatalf("write cert: %v", err)
	}
	if err := os.WriteFile(keyPath, []byte("broken"), 0o600); err != nil {
		t.Fatalf("write key: %v", err)
	}

	if _, err := EnsureTLSCertificate(certPath, keyPath, "device"); err == nil {
		t.Fatalf("expected corrupt TLS files to fail")
	}
}
