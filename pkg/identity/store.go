package identity

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/hex"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"time"

	"github.com/olafkfreund/cosmic-connectd/internal/atomicfile"
	"github.com/pion/logging"
)

// Errors returned by Store.
var (
	ErrCorruptState = errors.New("identity: persisted state is corrupt")
)

// CertValidity is how long a self-signed identity certificate is valid for
// (spec section 4.2: "validity >= 10 years").
const CertValidity = 10 * 365 * 24 * time.Hour

// DeviceIDBytes is the number of random bytes used to generate a device id
// (spec section 4.2: "random hex, >= 16 bytes").
const DeviceIDBytes = 16

// Certificate bundles the DER-encoded certificate and private key together
// with the certificate's fingerprint (spec section 3, "CertificateInfo").
type Certificate struct {
	CertDER       []byte
	PrivateKeyDER []byte
	Fingerprint   string
}

// TLSCertificate builds a tls.Certificate from the stored DER bytes, for use
// configuring a tls.Config.
func (c *Certificate) TLSCertificate() (tls.Certificate, error) {
	key, err := x509.ParseECPrivateKey(c.PrivateKeyDER)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("identity: parse private key: %w", err)
	}
	return tls.Certificate{
		Certificate: [][]byte{c.CertDER},
		PrivateKey:  key,
	}, nil
}

// Fingerprint computes the SHA-256 fingerprint of a DER-encoded certificate,
// hex-encoded (spec glossary: "Fingerprint").
func Fingerprint(certDER []byte) string {
	sum := sha256.Sum256(certDER)
	return hex.EncodeToString(sum[:])
}

// StoreConfig configures a Store.
type StoreConfig struct {
	// Dir is the directory holding certs/device.crt and certs/device.key
	// (spec section 6.3). Created if missing.
	Dir string

	// DeviceName and DeviceType seed a freshly generated identity. They are
	// not reset on later opens; use SetDeviceName to change the persisted
	// name.
	DeviceName string
	DeviceType DeviceType

	LoggerFactory logging.LoggerFactory
}

// Store persists the installation's self-identity: a stable device id, its
// human-facing name/type, and its certificate key pair (spec section 4.2,
// stable unless explicitly rotated).
type Store struct {
	dir string
	log logging.LeveledLogger

	info Info
	cert Certificate
}

// Open loads the identity from disk, generating and persisting one on first
// run. Re-opening an existing store returns byte-for-byte the same identity.
func Open(config StoreConfig) (*Store, error) {
	if config.Dir == "" {
		return nil, errors.New("identity: Dir is required")
	}

	s := &Store{dir: config.Dir}
	if config.LoggerFactory != nil {
		s.log = config.LoggerFactory.NewLogger("identity")
	}

	if err := os.MkdirAll(filepath.Join(s.dir, "certs"), 0o700); err != nil {
		return nil, fmt.Errorf("identity: create state dir: %w", err)
	}

	existing, err := s.load()
	if err != nil {
		return nil, err
	}
	if existing {
		if s.log != nil {
			s.log.Infof("loaded existing identity %s", s.info.DeviceID)
		}
		return s, nil
	}

	if config.DeviceName == "" {
		config.DeviceName = "cosmic-connectd"
	}
	if config.DeviceType == "" {
		config.DeviceType = DeviceTypeDesktop
	}

	if err := s.generate(config.DeviceName, config.DeviceType); err != nil {
		return nil, err
	}
	if err := s.persist(); err != nil {
		return nil, err
	}
	if s.log != nil {
		s.log.Infof("generated new identity %s", s.info.DeviceID)
	}
	return s, nil
}

// Info returns the current self-identity (device id, name, type). The
// returned value does not carry capability sets; callers compose those from
// the active plugin set (spec section 4.7).
func (s *Store) Info() Info {
	return s.info
}

// Certificate returns the self-signed certificate and private key.
func (s *Store) Certificate() Certificate {
	return s.cert
}

// SetDeviceName updates and persists the human-readable device name. This
// does not rotate the certificate or device id.
func (s *Store) SetDeviceName(name string) error {
	s.info.DeviceName = name
	return s.persist()
}

func (s *Store) certPath() string { return filepath.Join(s.dir, "certs", "device.crt") }
func (s *Store) keyPath() string  { return filepath.Join(s.dir, "certs", "device.key") }
func (s *Store) metaPath() string { return filepath.Join(s.dir, "certs", "device.json") }

func (s *Store) generate(name string, deviceType DeviceType) error {
	idBytes := make([]byte, DeviceIDBytes)
	if _, err := rand.Read(idBytes); err != nil {
		return fmt.Errorf("identity: generate device id: %w", err)
	}
	deviceID := hex.EncodeToString(idBytes)

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return fmt.Errorf("identity: generate key: %w", err)
	}

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return fmt.Errorf("identity: generate serial: %w", err)
	}

	now := time.Now()
	template := &x509.Certificate{
		SerialNumber:          serial,
		Subject:                pkix.Name{CommonName: deviceID},
		NotBefore:             now.Add(-time.Hour),
		NotAfter:              now.Add(CertValidity),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
		BasicConstraintsValid: true,
		IsCA:                  true,
	}

	certDER, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		return fmt.Errorf("identity: create certificate: %w", err)
	}

	keyDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		return fmt.Errorf("identity: marshal key: %w", err)
	}

	s.info = Info{
		DeviceID:   deviceID,
		DeviceName: name,
		DeviceType: deviceType,
	}
	s.cert = Certificate{
		CertDER:       certDER,
		PrivateKeyDER: keyDER,
		Fingerprint:   Fingerprint(certDER),
	}
	return nil
}

// persist writes the identity atomically: write-temp + fsync + rename, as
// required by spec section 6.3 for all on-disk state.
func (s *Store) persist() error {
	if err := atomicfile.WritePEM(s.certPath(), "CERTIFICATE", s.cert.CertDER); err != nil {
		return err
	}
	if err := atomicfile.WritePEM(s.keyPath(), "EC PRIVATE KEY", s.cert.PrivateKeyDER); err != nil {
		return err
	}
	meta := fmt.Sprintf(`{"deviceId":%q,"deviceName":%q,"deviceType":%q}`,
		s.info.DeviceID, s.info.DeviceName, s.info.DeviceType)
	return atomicfile.Write(s.metaPath(), []byte(meta))
}

func (s *Store) load() (bool, error) {
	certPEMBytes, err := os.ReadFile(s.certPath())
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("identity: read cert: %w", err)
	}
	keyPEMBytes, err := os.ReadFile(s.keyPath())
	if err != nil {
		return false, fmt.Errorf("identity: read key: %w", err)
	}

	certBlock, _ := pem.Decode(certPEMBytes)
	keyBlock, _ := pem.Decode(keyPEMBytes)
	if certBlock == nil || keyBlock == nil {
		return false, ErrCorruptState
	}

	if _, err := x509.ParseCertificate(certBlock.Bytes); err != nil {
		return false, fmt.Errorf("%w: %v", ErrCorruptState, err)
	}

	metaBytes, err := os.ReadFile(s.metaPath())
	if err != nil {
		return false, fmt.Errorf("identity: read metadata: %w", err)
	}
	var meta struct {
		DeviceID   string     `json:"deviceId"`
		DeviceName string     `json:"deviceName"`
		DeviceType DeviceType `json:"deviceType"`
	}
	if err := json.Unmarshal(metaBytes, &meta); err != nil {
		return false, fmt.Errorf("%w: %v", ErrCorruptState, err)
	}

	s.info = Info{DeviceID: meta.DeviceID, DeviceName: meta.DeviceName, DeviceType: meta.DeviceType}
	s.cert = Certificate{
		CertDER:       certBlock.Bytes,
		PrivateKeyDER: keyBlock.Bytes,
		Fingerprint:   Fingerprint(certBlock.Bytes),
	}
	return true, nil
}
