package passkey

import (
	"context"

	"github.com/go-webauthn/webauthn/protocol"

	"campusattend/internal/apperr"
	"campusattend/internal/challenge"
	"campusattend/internal/credential"
)

// Enroller runs the registration ceremony that binds a student to their
// authenticator.
type Enroller struct {
	cfg        Config
	creds      *credential.Store
	challenges *challenge.Ledger
}

func NewEnroller(cfg Config, creds *credential.Store, challenges *challenge.Ledger) *Enroller {
	cfg.SetDefaults()
	return &Enroller{cfg: cfg, creds: creds, challenges: challenges}
}

// Begin issues a registration challenge and returns creation options.
// Students that already hold a credential are refused before a challenge
// is issued.
func (e *Enroller) Begin(ctx context.Context, studentID, displayName string) (*protocol.CredentialCreation, error) {
	if _, err := e.creds.Get(ctx, studentID); err == nil {
		return nil, apperr.ErrAlreadyRegistered
	} else if apperr.CodeOf(err) != apperr.CodeUnregistered {
		return nil, err
	}
	ch, err := e.challenges.Issue(ctx, studentID, challenge.PurposeRegistration)
	if err != nil {
		return nil, err
	}
	if displayName == "" {
		displayName = studentID
	}
	return &protocol.CredentialCreation{
		Response: protocol.PublicKeyCredentialCreationOptions{
			RelyingParty: protocol.RelyingPartyEntity{
				CredentialEntity: protocol.CredentialEntity{Name: e.cfg.RPDisplayName},
				ID:               e.cfg.RPID,
			},
			User: protocol.UserEntity{
				CredentialEntity: protocol.CredentialEntity{Name: studentID},
				DisplayName:      displayName,
				ID:               protocol.URLEncodedBase64(studentID),
			},
			Challenge:  ch.Value,
			Parameters: credentialParameters,
			Timeout:    int(e.cfg.Timeout.Milliseconds()),
			AuthenticatorSelection: protocol.AuthenticatorSelection{
				AuthenticatorAttachment: protocol.Platform,
				ResidentKey:             protocol.ResidentKeyRequirementPreferred,
				UserVerification:        e.cfg.userVerification(),
			},
			Attestation: protocol.PreferNoAttestation,
		},
	}, nil
}

// Finish verifies a serialized attestation response and registers the
// credential it carries.
func (e *Enroller) Finish(ctx context.Context, studentID string, body []byte) (credential.Credential, error) {
	ch, err := e.challenges.Consume(ctx, studentID, challenge.PurposeRegistration)
	if err != nil {
		return credential.Credential{}, err
	}
	parsed, err := protocol.ParseCredentialCreationResponseBytes(body)
	if err != nil {
		return credential.Credential{}, apperr.Wrap(apperr.CodeInvalidInput, "malformed attestation", err)
	}
	authData := parsed.Response.AttestationObject.AuthData
	if !protocol.IsOriginInHaystack(parsed.Response.CollectedClientData.Origin, e.cfg.RPOrigins) {
		return credential.Credential{}, apperr.Newf(apperr.CodeOriginMismatch,
			"origin %q is not allowed", parsed.Response.CollectedClientData.Origin)
	}
	_, err = parsed.Verify(ch.Encoded(), e.cfg.UserVerification, true, e.cfg.RPID, e.cfg.RPOrigins, nil,
		protocol.TopOriginIgnoreVerificationMode, nil, credentialParameters)
	if err != nil {
		return credential.Credential{}, apperr.Wrap(apperr.CodeSignatureInvalid, "attestation verification failed", describe(err))
	}
	return e.creds.Register(ctx, studentID, authData.AttData.CredentialID, authData.AttData.CredentialPublicKey, authData.Counter)
}
