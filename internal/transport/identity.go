package transport

import (
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"encoding/hex"
	"errors"
)

// ALPN is the protocol identifier negotiated on every QUIC session; a
// mismatch is a hard handshake failure.
const ALPN = "stablessh"

// ErrNoPeerCertificate is returned when a completed handshake somehow
// carries no peer certificate; this should not happen given both
// verifiers always require one.
var ErrNoPeerCertificate = errors.New("transport: no peer certificate")

// permissiveVerify accepts any certificate chain the peer presents.
// Identity is established out-of-band, from the leaf's
// SubjectPublicKeyInfo bytes (see PubKey), not from chain validation.
func permissiveVerify(rawCerts [][]byte, _ [][]*x509.Certificate) error {
	if len(rawCerts) == 0 {
		return ErrNoPeerCertificate
	}
	_, err := x509.ParseCertificate(rawCerts[0])
	return err
}

// ClientTLSConfig builds the permissive client-side TLS config: it
// trusts no CA, accepts any server certificate, and negotiates ALPN.
func ClientTLSConfig(cert tls.Certificate) *tls.Config {
	return &tls.Config{
		Certificates:          []tls.Certificate{cert},
		InsecureSkipVerify:    true,
		VerifyPeerCertificate: permissiveVerify,
		NextProtos:            []string{ALPN},
	}
}

// ServerTLSConfig builds the permissive server-side TLS config: it
// requests (and requires) a client certificate but validates it the
// same permissive way, since every validly-presenting public key is
// accepted (authorization policy is out of scope).
func ServerTLSConfig(cert tls.Certificate) *tls.Config {
	return &tls.Config{
		Certificates:          []tls.Certificate{cert},
		ClientAuth:            tls.RequireAnyClientCert,
		InsecureSkipVerify:    true,
		VerifyPeerCertificate: permissiveVerify,
		NextProtos:            []string{ALPN},
	}
}

// PubKey extracts the peer's raw SubjectPublicKeyInfo bytes from its
// leaf certificate: the pool key and session identity (spec section 3,
// "pubkey" in the glossary).
func PubKey(state tls.ConnectionState) ([]byte, error) {
	if len(state.PeerCertificates) == 0 {
		return nil, ErrNoPeerCertificate
	}
	leaf := state.PeerCertificates[0]
	return leaf.RawSubjectPublicKeyInfo, nil
}

// DisplayName returns the optional display name parsed from the peer's
// leaf certificate CN, or "" if unset.
func DisplayName(state tls.ConnectionState) string {
	if len(state.PeerCertificates) == 0 {
		return ""
	}
	return state.PeerCertificates[0].Subject.CommonName
}

// ShortID derives the control plane's stable short hex id for a pubkey:
// the first 8 bytes of its sha256 digest, hex-encoded. The source hints
// at, but does not pin, this construction (spec section 9); this
// module treats it as an implementation choice.
func ShortID(pubkey []byte) string {
	sum := sha256.Sum256(pubkey)
	return hex.EncodeToString(sum[:8])
}
