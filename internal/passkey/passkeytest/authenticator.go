// Package passkeytest provides a software WebAuthn authenticator that
// produces real, verifiable registration and assertion responses.
package passkeytest

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"

	"github.com/fxamacker/cbor/v2"
	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/protocol/webauthncose"
)

const (
	flagUserPresent  = 0x01
	flagUserVerified = 0x04
	flagAttestedData = 0x40
)

var ctap2, _ = cbor.CTAP2EncOptions().EncMode()

// Authenticator is a P-256 platform authenticator held in memory.
type Authenticator struct {
	RPID         string
	Origin       string
	CredentialID []byte
	SignCount    uint32
	UserVerified bool

	key *ecdsa.PrivateKey
}

func New(rpID, origin string) (*Authenticator, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, err
	}
	id := make([]byte, 16)
	if _, err := rand.Read(id); err != nil {
		return nil, err
	}
	return &Authenticator{RPID: rpID, Origin: origin, CredentialID: id, UserVerified: true, key: key}, nil
}

// PublicKeyCOSE is the credential public key as a COSE_Key map.
func (a *Authenticator) PublicKeyCOSE() ([]byte, error) {
	x := make([]byte, 32)
	y := make([]byte, 32)
	a.key.PublicKey.X.FillBytes(x)
	a.key.PublicKey.Y.FillBytes(y)
	return ctap2.Marshal(map[int]any{
		1:  int(webauthncose.EllipticKey),
		3:  int(webauthncose.AlgES256),
		-1: int(webauthncose.P256),
		-2: x,
		-3: y,
	})
}

// Attestation returns a serialized registration response with "none"
// attestation for challenge.
func (a *Authenticator) Attestation(challenge []byte) ([]byte, error) {
	pub, err := a.PublicKeyCOSE()
	if err != nil {
		return nil, err
	}
	attested := make([]byte, 0, 18+len(a.CredentialID)+len(pub))
	attested = append(attested, make([]byte, 16)...)
	attested = binary.BigEndian.AppendUint16(attested, uint16(len(a.CredentialID)))
	attested = append(attested, a.CredentialID...)
	attested = append(attested, pub...)

	authData := authenticatorData(a.RPID, a.flags()|flagAttestedData, a.SignCount, attested)
	attObj, err := ctap2.Marshal(map[string]any{
		"fmt":      "none",
		"attStmt":  map[string]any{},
		"authData": authData,
	})
	if err != nil {
		return nil, err
	}
	clientData, err := clientDataJSON(protocol.CreateCeremony, challenge, a.Origin)
	if err != nil {
		return nil, err
	}
	id := base64.RawURLEncoding.EncodeToString(a.CredentialID)
	return json.Marshal(map[string]any{
		"id":    id,
		"rawId": id,
		"type":  "public-key",
		"response": map[string]any{
			"clientDataJSON":    base64.RawURLEncoding.EncodeToString(clientData),
			"attestationObject": base64.RawURLEncoding.EncodeToString(attObj),
		},
	})
}

type assertOptions struct {
	origin       string
	rpID         string
	ceremony     protocol.CeremonyType
	counter      *uint32
	credentialID []byte
	tamper       bool
}

type AssertOption func(*assertOptions)

func WithOrigin(origin string) AssertOption {
	return func(o *assertOptions) { o.origin = origin }
}

func WithRPID(rpID string) AssertOption {
	return func(o *assertOptions) { o.rpID = rpID }
}

// WithCounter signs with a fixed counter instead of advancing SignCount,
// as a cloned authenticator would.
func WithCounter(n uint32) AssertOption {
	return func(o *assertOptions) { o.counter = &n }
}

func WithCredentialID(id []byte) AssertOption {
	return func(o *assertOptions) { o.credentialID = id }
}

// WithTamperedSignature corrupts the signature after signing.
func WithTamperedSignature() AssertOption {
	return func(o *assertOptions) { o.tamper = true }
}

func WithCeremony(c protocol.CeremonyType) AssertOption {
	return func(o *assertOptions) { o.ceremony = c }
}

// Assertion signs challenge and returns a serialized assertion response.
// SignCount is advanced first unless WithCounter is given.
func (a *Authenticator) Assertion(challenge []byte, opts ...AssertOption) ([]byte, error) {
	o := assertOptions{origin: a.Origin, rpID: a.RPID, ceremony: protocol.AssertCeremony, credentialID: a.CredentialID}
	for _, opt := range opts {
		opt(&o)
	}
	counter := a.SignCount + 1
	if o.counter != nil {
		counter = *o.counter
	} else {
		a.SignCount = counter
	}

	authData := authenticatorData(o.rpID, a.flags(), counter, nil)
	clientData, err := clientDataJSON(o.ceremony, challenge, o.origin)
	if err != nil {
		return nil, err
	}
	hash := sha256.Sum256(clientData)
	digest := sha256.Sum256(append(append([]byte{}, authData...), hash[:]...))
	sig, err := ecdsa.SignASN1(rand.Reader, a.key, digest[:])
	if err != nil {
		return nil, err
	}
	if o.tamper {
		sig[len(sig)-1] ^= 0xff
	}

	id := base64.RawURLEncoding.EncodeToString(o.credentialID)
	return json.Marshal(map[string]any{
		"id":    id,
		"rawId": id,
		"type":  "public-key",
		"response": map[string]any{
			"clientDataJSON":    base64.RawURLEncoding.EncodeToString(clientData),
			"authenticatorData": base64.RawURLEncoding.EncodeToString(authData),
			"signature":         base64.RawURLEncoding.EncodeToString(sig),
		},
	})
}

func (a *Authenticator) flags() byte {
	f := byte(flagUserPresent)
	if a.UserVerified {
		f |= flagUserVerified
	}
	return f
}

func authenticatorData(rpID string, flags byte, counter uint32, attested []byte) []byte {
	rpHash := sha256.Sum256([]byte(rpID))
	out := make([]byte, 0, 37+len(attested))
	out = append(out, rpHash[:]...)
	out = append(out, flags)
	out = binary.BigEndian.AppendUint32(out, counter)
	return append(out, attested...)
}

func clientDataJSON(ceremony protocol.CeremonyType, challenge []byte, origin string) ([]byte, error) {
	return json.Marshal(protocol.CollectedClientData{
		Type:      ceremony,
		Challenge: base64.RawURLEncoding.EncodeToString(challenge),
		Origin:    origin,
	})
}
