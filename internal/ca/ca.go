// Package ca implements the registry's certificate authority: a single
// persistent root keypair that signs short-lived agent identity certificates
// for validated host names. The authority is an explicitly constructed
// service with an Initialize lifecycle; nothing here is process-global.
package ca

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"os"
	"path/filepath"
	"sync"
	"time"

	dErrors "ansregistry/pkg/domain-errors"
)

const (
	rootKeyFile  = "root.key"
	rootCertFile = "root.crt"

	rootKeyBits      = 4096
	rootValidity     = 10 * 365 * 24 * time.Hour
	leafValidity     = 365 * 24 * time.Hour
	clockSkewGrace   = 5 * time.Minute
	serialNumberBits = 128
)

// Authority owns the root signing key. Initialization and signing are each
// guarded by a mutex: Initialize is idempotent under concurrent calls at
// process start, and at most one signing operation touches the key at a time.
type Authority struct {
	dir    string
	logger *slog.Logger

	keyBits int

	initMu sync.Mutex
	signMu sync.Mutex

	key     *rsa.PrivateKey
	cert    *x509.Certificate
	certPEM string
}

// Option configures an Authority.
type Option func(*Authority)

// WithKeyBits overrides the root key size. Tests use smaller keys to keep
// generation fast; production keeps the default.
func WithKeyBits(bits int) Option {
	return func(a *Authority) {
		if bits > 0 {
			a.keyBits = bits
		}
	}
}

// New constructs an Authority rooted at dir. Call Initialize before issuing.
func New(dir string, logger *slog.Logger, opts ...Option) *Authority {
	a := &Authority{
		dir:     dir,
		logger:  logger,
		keyBits: rootKeyBits,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Initialize loads the persisted root key material, generating and persisting
// it first if absent. Safe to call repeatedly and concurrently; only the
// first call does work.
func (a *Authority) Initialize(ctx context.Context) error {
	a.initMu.Lock()
	defer a.initMu.Unlock()

	if a.key != nil {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "ca initialization cancelled")
	}
	if err := os.MkdirAll(a.dir, 0o700); err != nil {
		return dErrors.Wrap(err, dErrors.CodeCA, "create ca directory")
	}

	keyPath := filepath.Join(a.dir, rootKeyFile)
	certPath := filepath.Join(a.dir, rootCertFile)

	key, cert, err := loadRoot(keyPath, certPath)
	switch {
	case err == nil:
		a.logger.Info("loaded existing root certificate", "dir", a.dir)
	case errors.Is(err, os.ErrNotExist):
		key, cert, err = a.generateRoot(keyPath, certPath)
		if err != nil {
			return err
		}
		a.logger.Info("generated new root certificate", "dir", a.dir, "key_bits", a.keyBits)
	default:
		return dErrors.Wrap(err, dErrors.CodeCA, "load root key material")
	}

	a.key = key
	a.cert = cert
	a.certPEM = string(pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: cert.Raw}))
	return nil
}

// IssueCertificate validates the CSR, signs it with the root key, and returns
// the PEM-encoded leaf bound to subjectHost via the subject alternative name.
func (a *Authority) IssueCertificate(ctx context.Context, csrPEM, subjectHost string) (string, error) {
	if a.key == nil || a.cert == nil {
		return "", dErrors.New(dErrors.CodeCA, "authority is not initialized")
	}
	if err := ctx.Err(); err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeTimeout, "issuance cancelled")
	}

	csr, err := parseCSR(csrPEM)
	if err != nil {
		return "", err
	}

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), serialNumberBits))
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeCA, "generate serial number")
	}

	now := time.Now()
	template := &x509.Certificate{
		SerialNumber: serial,
		Subject:      pkix.Name{CommonName: subjectHost},
		DNSNames:     []string{subjectHost},
		NotBefore:    now.Add(-clockSkewGrace),
		NotAfter:     now.Add(leafValidity),
		KeyUsage:     x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
	}

	// Single-writer discipline over the root key: concurrent verifications
	// serialize here.
	a.signMu.Lock()
	der, err := x509.CreateCertificate(rand.Reader, template, a.cert, csr.PublicKey, a.key)
	a.signMu.Unlock()
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeCA, "sign certificate")
	}

	return string(pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})), nil
}

// CertificatePEM returns the PEM-encoded root certificate.
func (a *Authority) CertificatePEM() string {
	return a.certPEM
}

// Fingerprint returns a stable identifier for the root certificate: the
// SHA-256 digest of its DER encoding. Two processes holding the same root
// always compute the same value.
func (a *Authority) Fingerprint() string {
	if a.cert == nil {
		return ""
	}
	sum := sha256.Sum256(a.cert.Raw)
	return "sha256:" + hex.EncodeToString(sum[:])
}

func parseCSR(csrPEM string) (*x509.CertificateRequest, error) {
	block, _ := pem.Decode([]byte(csrPEM))
	if block == nil || block.Type != "CERTIFICATE REQUEST" {
		return nil, dErrors.New(dErrors.CodeCA, "certificate signing request is not valid PEM")
	}
	csr, err := x509.ParseCertificateRequest(block.Bytes)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeCA, "parse certificate signing request")
	}
	if err := csr.CheckSignature(); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeCA, "certificate signing request signature check failed")
	}
	return csr, nil
}

func loadRoot(keyPath, certPath string) (*rsa.PrivateKey, *x509.Certificate, error) {
	keyBytes, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, nil, err
	}
	certBytes, err := os.ReadFile(certPath)
	if err != nil {
		return nil, nil, err
	}

	keyBlock, _ := pem.Decode(keyBytes)
	if keyBlock == nil {
		return nil, nil, fmt.Errorf("root key file %s is not valid PEM", keyPath)
	}
	key, err := x509.ParsePKCS1PrivateKey(keyBlock.Bytes)
	if err != nil {
		return nil, nil, fmt.Errorf("parse root key: %w", err)
	}

	certBlock, _ := pem.Decode(certBytes)
	if certBlock == nil {
		return nil, nil, fmt.Errorf("root cert file %s is not valid PEM", certPath)
	}
	cert, err := x509.ParseCertificate(certBlock.Bytes)
	if err != nil {
		return nil, nil, fmt.Errorf("parse root certificate: %w", err)
	}
	return key, cert, nil
}

func (a *Authority) generateRoot(keyPath, certPath string) (*rsa.PrivateKey, *x509.Certificate, error) {
	key, err := rsa.GenerateKey(rand.Reader, a.keyBits)
	if err != nil {
		return nil, nil, dErrors.Wrap(err, dErrors.CodeCA, "generate root key")
	}

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), serialNumberBits))
	if err != nil {
		return nil, nil, dErrors.Wrap(err, dErrors.CodeCA, "generate serial number")
	}

	now := time.Now()
	template := &x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{CommonName: "ANS Registry Root CA", Organization: []string{"ANS Registry"}},
		NotBefore:             now.Add(-clockSkewGrace),
		NotAfter:              now.Add(rootValidity),
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign | x509.KeyUsageDigitalSignature,
		BasicConstraintsValid: true,
		IsCA:                  true,
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		return nil, nil, dErrors.Wrap(err, dErrors.CodeCA, "self-sign root certificate")
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, nil, dErrors.Wrap(err, dErrors.CodeCA, "parse generated root certificate")
	}

	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
	if err := writeFileAtomic(keyPath, keyPEM, 0o600); err != nil {
		return nil, nil, dErrors.Wrap(err, dErrors.CodeCA, "persist root key")
	}
	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	if err := writeFileAtomic(certPath, certPEM, 0o644); err != nil {
		return nil, nil, dErrors.Wrap(err, dErrors.CodeCA, "persist root certificate")
	}
	return key, cert, nil
}

// writeFileAtomic writes through a uniquely named temp file in the target
// directory and renames it into place. The temp file is removed on every
// error path so failed writes never leave artifacts behind.
func writeFileAtomic(path string, data []byte, mode os.FileMode) error {
	dir := filepath.Dir(path)
	f, err := os.CreateTemp(dir, filepath.Base(path)+".tmp.*")
	if err != nil {
		return err
	}
	tmp := f.Name()
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Chmod(mode); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}
