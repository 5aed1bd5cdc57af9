// Package passkey verifies WebAuthn registrations and assertions for the
// check-in flow. Each student holds a single platform credential.
package passkey

import (
	"net/url"
	"strings"
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/protocol/webauthncose"

	"campusattend/internal/apperr"
)

// Config holds the relying party settings.
type Config struct {
	// RPID is the relying party identifier, normally the registrable domain.
	RPID string

	// RPDisplayName is shown to students by the platform authenticator.
	RPDisplayName string

	// RPOrigins lists the fully qualified origins allowed in client data.
	RPOrigins []string

	// Timeout is the ceremony timeout advertised to clients.
	Timeout time.Duration

	// UserVerification requires the UV flag, i.e. a biometric or PIN check
	// on the device rather than mere presence.
	UserVerification bool
}

func (c *Config) SetDefaults() {
	if c.RPDisplayName == "" {
		c.RPDisplayName = "Campus Attendance"
	}
	if c.Timeout == 0 {
		c.Timeout = 60 * time.Second
	}
	if len(c.RPOrigins) == 0 && c.RPID != "" {
		c.RPOrigins = []string{"https://" + c.RPID}
	}
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.RPID) == "" {
		return apperr.InvalidInput("webauthn relying party id is required")
	}
	if len(c.RPOrigins) == 0 {
		return apperr.InvalidInput("at least one webauthn origin is required")
	}
	for _, o := range c.RPOrigins {
		u, err := url.Parse(o)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return apperr.Newf(apperr.CodeInvalidInput, "invalid webauthn origin %q", o)
		}
	}
	return nil
}

func (c *Config) userVerification() protocol.UserVerificationRequirement {
	if c.UserVerification {
		return protocol.VerificationRequired
	}
	return protocol.VerificationPreferred
}

// credentialParameters are the key algorithms accepted at registration.
var credentialParameters = []protocol.CredentialParameter{
	{Type: protocol.PublicKeyCredentialType, Algorithm: webauthncose.AlgES256},
	{Type: protocol.PublicKeyCredentialType, Algorithm: webauthncose.AlgEdDSA},
	{Type: protocol.PublicKeyCredentialType, Algorithm: webauthncose.AlgRS256},
}
