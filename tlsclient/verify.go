package tlsclient

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
)

// VerifyMode records whether the peer certificate is checked.
type VerifyMode int

const (
	// VerifyNone is the unauthenticated mode used when no CA chain was
	// supplied.
	VerifyNone VerifyMode = iota
	// VerifyRequired checks the peer chain against the supplied CAs.
	VerifyRequired
)

func (m VerifyMode) String() string {
	if m == VerifyRequired {
		return "required"
	}
	return "none"
}

// VerifyResult is the outcome of peer verification for the current
// connection.
type VerifyResult struct {
	Mode VerifyMode
	Err  error // nil when verified or not checked
}

// OK reports whether the peer is trusted or verification was not
// requested.
func (r VerifyResult) OK() bool { return r.Err == nil }

// String describes the result in one line.
func (r VerifyResult) String() string {
	switch {
	case r.Mode == VerifyNone:
		return "not verified (no CA chain)"
	case r.Err == nil:
		return "verified"
	default:
		return "failed: " + describeVerifyError(r.Err)
	}
}

var errNoPeerCertificate = errors.New("peer presented no certificate")

// verifyPeer checks the presented chain against roots.  The hostname
// is checked only when serverName is set.
func verifyPeer(state tls.ConnectionState, roots *x509.CertPool, serverName string) error {
	if len(state.PeerCertificates) == 0 {
		return errNoPeerCertificate
	}
	opts := x509.VerifyOptions{
		Roots:         roots,
		Intermediates: x509.NewCertPool(),
		DNSName:       serverName,
		KeyUsages:     []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	}
	for _, c := range state.PeerCertificates[1:] {
		opts.Intermediates.AddCert(c)
	}
	_, err := state.PeerCertificates[0].Verify(opts)
	return err
}

// describeVerifyError turns an x509 failure into a short diagnostic.
func describeVerifyError(err error) string {
	var (
		unknown  x509.UnknownAuthorityError
		invalid  x509.CertificateInvalidError
		hostname x509.HostnameError
	)
	switch {
	case errors.As(err, &unknown):
		return "certificate is not signed by a trusted CA"
	case errors.As(err, &hostname):
		return "certificate name does not match " + hostname.Host
	case errors.Is(err, errNoPeerCertificate):
		return "no certificate presented"
	case errors.As(err, &invalid):
		switch invalid.Reason {
		case x509.Expired:
			return "certificate has expired or is not yet valid"
		case x509.IncompatibleUsage:
			return "certificate is not valid for server authentication"
		case x509.NotAuthorizedToSign:
			return "issuer is not a CA"
		}
	}
	return err.Error()
}
