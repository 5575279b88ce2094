package tlsclient

import (
	"bytes"
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"strings"
)

// Credentials holds caller-owned PEM buffers.  They are parsed on every
// Connect and never copied or modified; the caller must keep them
// unchanged until Connect returns.  A trailing NUL terminator is
// tolerated.
type Credentials struct {
	CACert     []byte // trust anchors; empty disables peer verification
	ClientCert []byte // leaf first, optional intermediates after
	ClientKey  []byte // PKCS#1, PKCS#8 or SEC1, unencrypted
}

// HasCA reports whether a CA chain was supplied.
func (c Credentials) HasCA() bool { return len(trimNUL(c.CACert)) > 0 }

// HasClientCert reports whether a client certificate was supplied.
func (c Credentials) HasClientCert() bool { return len(trimNUL(c.ClientCert)) > 0 }

// HasClientKey reports whether a client key was supplied.
func (c Credentials) HasClientKey() bool { return len(trimNUL(c.ClientKey)) > 0 }

// LoadCredentials reads PEM files from disk.  Empty paths are skipped.
func LoadCredentials(caFile, certFile, keyFile string) (Credentials, error) {
	var creds Credentials
	for _, f := range []struct {
		path string
		dst  *[]byte
	}{
		{caFile, &creds.CACert},
		{certFile, &creds.ClientCert},
		{keyFile, &creds.ClientKey},
	} {
		if f.path == "" {
			continue
		}
		data, err := os.ReadFile(f.path)
		if err != nil {
			return Credentials{}, fmt.Errorf("read %s: %w", f.path, err)
		}
		*f.dst = data
	}
	return creds, nil
}

var (
	errNoCertificate = errors.New("no certificate found in PEM data")
	errTruncatedPEM  = errors.New("truncated or malformed PEM block")
	errNoKey         = errors.New("no private key found in PEM data")
	errEncryptedKey  = errors.New("encrypted private keys are not supported")
	errKeyMismatch   = errors.New("private key does not match certificate public key")
)

func trimNUL(b []byte) []byte { return bytes.TrimRight(b, "\x00") }

// parseCertificates decodes every CERTIFICATE block in data.  Other
// block types are skipped; a block that fails to decode or parse fails
// the whole chain.
func parseCertificates(data []byte) ([]*x509.Certificate, error) {
	var certs []*x509.Certificate
	rest := trimNUL(data)
	for {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}
		if block.Type != "CERTIFICATE" {
			continue
		}
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("certificate %d: %w", len(certs)+1, err)
		}
		certs = append(certs, cert)
	}
	if bytes.Contains(rest, []byte("-----BEGIN")) {
		return nil, errTruncatedPEM
	}
	if len(certs) == 0 {
		return nil, errNoCertificate
	}
	return certs, nil
}

// parsePrivateKey decodes the first private key block in data.
func parsePrivateKey(data []byte) (crypto.Signer, error) {
	rest := trimNUL(data)
	for {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			if bytes.Contains(rest, []byte("-----BEGIN")) {
				return nil, errTruncatedPEM
			}
			return nil, errNoKey
		}
		if !strings.HasSuffix(block.Type, "PRIVATE KEY") {
			continue
		}
		//nolint:staticcheck // legacy RFC 1423 encryption is only detected, never decrypted
		if block.Type == "ENCRYPTED PRIVATE KEY" || x509.IsEncryptedPEMBlock(block) {
			return nil, errEncryptedKey
		}
		return decodeKey(block.Bytes)
	}
}

func decodeKey(der []byte) (crypto.Signer, error) {
	if key, err := x509.ParsePKCS1PrivateKey(der); err == nil {
		return key, nil
	}
	if key, err := x509.ParsePKCS8PrivateKey(der); err == nil {
		switch k := key.(type) {
		case *rsa.PrivateKey, *ecdsa.PrivateKey, ed25519.PrivateKey:
			return k.(crypto.Signer), nil
		default:
			return nil, fmt.Errorf("unsupported PKCS#8 key type %T", key)
		}
	}
	if key, err := x509.ParseECPrivateKey(der); err == nil {
		return key, nil
	}
	return nil, errors.New("key is neither PKCS#1, PKCS#8 nor SEC1")
}

type publicKeyEqualer interface {
	Equal(crypto.PublicKey) bool
}

// clientCertificate builds the certificate presented during client
// authentication from a PEM chain and its key.
func clientCertificate(certPEM, keyPEM []byte) (*tls.Certificate, error) {
	chain, err := parseCertificates(certPEM)
	if err != nil {
		return nil, &credentialError{kind: kindCert, err: err}
	}
	key, err := parsePrivateKey(keyPEM)
	if err != nil {
		return nil, &credentialError{kind: kindKey, err: err}
	}
	pub, ok := key.Public().(publicKeyEqualer)
	if !ok || !pub.Equal(chain[0].PublicKey) {
		return nil, &credentialError{kind: kindKey, err: errKeyMismatch}
	}

	cert := &tls.Certificate{PrivateKey: key, Leaf: chain[0]}
	for _, c := range chain {
		cert.Certificate = append(cert.Certificate, c.Raw)
	}
	return cert, nil
}

type credentialPart int

const (
	kindCert credentialPart = iota
	kindKey
)

// credentialError tells Connect which half of the client pair failed.
type credentialError struct {
	kind credentialPart
	err  error
}

func (e *credentialError) Error() string { return e.err.Error() }
func (e *credentialError) Unwrap() error { return e.err }
