package passkey

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"fmt"

	"github.com/go-webauthn/webauthn/protocol"

	"campusattend/internal/apperr"
	"campusattend/internal/challenge"
	"campusattend/internal/credential"
)

// Verifier checks authentication assertions against the stored credential
// and the challenge last issued to the student.
type Verifier struct {
	cfg        Config
	creds      *credential.Store
	challenges *challenge.Ledger
}

func NewVerifier(cfg Config, creds *credential.Store, challenges *challenge.Ledger) *Verifier {
	cfg.SetDefaults()
	return &Verifier{cfg: cfg, creds: creds, challenges: challenges}
}

// Begin issues an authentication challenge and returns the request options
// the browser passes to navigator.credentials.get.
func (v *Verifier) Begin(ctx context.Context, studentID string) (*protocol.CredentialAssertion, error) {
	cred, err := v.creds.Get(ctx, studentID)
	if err != nil {
		return nil, err
	}
	ch, err := v.challenges.Issue(ctx, studentID, challenge.PurposeAuthentication)
	if err != nil {
		return nil, err
	}
	return &protocol.CredentialAssertion{
		Response: protocol.PublicKeyCredentialRequestOptions{
			Challenge:      ch.Value,
			Timeout:        int(v.cfg.Timeout.Milliseconds()),
			RelyingPartyID: v.cfg.RPID,
			AllowedCredentials: []protocol.CredentialDescriptor{{
				Type:         protocol.PublicKeyCredentialType,
				CredentialID: cred.CredentialID,
			}},
			UserVerification: v.cfg.userVerification(),
		},
	}, nil
}

// Verify validates a serialized PublicKeyCredential assertion for studentID
// and returns the authenticator's new signature counter. It does not store
// the counter; the caller advances it together with its own write.
func (v *Verifier) Verify(ctx context.Context, studentID string, assertion []byte, purpose challenge.Purpose) (uint32, error) {
	cred, err := v.creds.Get(ctx, studentID)
	if err != nil {
		return 0, err
	}
	ch, err := v.challenges.Consume(ctx, studentID, purpose)
	if err != nil {
		return 0, err
	}

	parsed, err := protocol.ParseCredentialRequestResponseBytes(assertion)
	if err != nil {
		return 0, apperr.Wrap(apperr.CodeInvalidInput, "malformed assertion", err)
	}
	if !bytes.Equal(parsed.RawID, cred.CredentialID) {
		return 0, apperr.New(apperr.CodeSignatureInvalid, "assertion was made with a different credential")
	}
	if err := v.checkBinding(parsed.Response.CollectedClientData.Origin, parsed.Response.AuthenticatorData.RPIDHash); err != nil {
		return 0, err
	}

	err = parsed.Verify(ch.Encoded(), v.cfg.RPID, v.cfg.RPOrigins, nil,
		protocol.TopOriginIgnoreVerificationMode, "", v.cfg.UserVerification, true, cred.PublicKey)
	if err != nil {
		return 0, apperr.Wrap(apperr.CodeSignatureInvalid, "assertion verification failed", describe(err))
	}

	counter := parsed.Response.AuthenticatorData.Counter
	if counter <= cred.SignCount {
		return 0, apperr.Newf(apperr.CodeReplayDetected,
			"signature counter %d does not exceed stored counter %d", counter, cred.SignCount)
	}
	return counter, nil
}

// checkBinding separates origin and relying party mismatches from
// signature failures, which the library reports with one error type.
func (v *Verifier) checkBinding(origin string, rpIDHash []byte) error {
	if !protocol.IsOriginInHaystack(origin, v.cfg.RPOrigins) {
		return apperr.Newf(apperr.CodeOriginMismatch, "origin %q is not allowed", origin)
	}
	want := sha256.Sum256([]byte(v.cfg.RPID))
	if !bytes.Equal(rpIDHash, want[:]) {
		return apperr.New(apperr.CodeOriginMismatch, "relying party id hash mismatch")
	}
	return nil
}

// describe keeps the developer detail the library puts in DevInfo.
func describe(err error) error {
	var perr *protocol.Error
	if errors.As(err, &perr) && perr.DevInfo != "" {
		return fmt.Errorf("%s: %s", perr.Details, perr.DevInfo)
	}
	return err
}
