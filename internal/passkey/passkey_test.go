package passkey_test

import (
	"context"
	"testing"
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campusattend/internal/apperr"
	"campusattend/internal/challenge"
	"campusattend/internal/clock"
	"campusattend/internal/credential"
	"campusattend/internal/passkey"
	"campusattend/internal/passkey/passkeytest"
)

const (
	rpID   = "attend.example.edu"
	origin = "https://attend.example.edu"
)

type fixture struct {
	clock      *clock.Fixed
	creds      *credential.Store
	challenges *challenge.Ledger
	enroller   *passkey.Enroller
	verifier   *passkey.Verifier
	device     *passkeytest.Authenticator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clk := clock.NewFixed(time.Date(2026, 3, 2, 7, 30, 0, 0, time.UTC))
	creds := credential.NewStore(credential.NewMemoryRepository(), clk)
	challenges := challenge.NewLedger(challenge.NewMemoryStore(), clk, time.Minute)
	cfg := passkey.Config{RPID: rpID, RPOrigins: []string{origin}, UserVerification: true}
	require.NoError(t, cfg.Validate())

	device, err := passkeytest.New(rpID, origin)
	require.NoError(t, err)
	return &fixture{
		clock:      clk,
		creds:      creds,
		challenges: challenges,
		enroller:   passkey.NewEnroller(cfg, creds, challenges),
		verifier:   passkey.NewVerifier(cfg, creds, challenges),
		device:     device,
	}
}

func (f *fixture) enroll(t *testing.T, studentID string) credential.Credential {
	t.Helper()
	ctx := context.Background()
	opts, err := f.enroller.Begin(ctx, studentID, "Ada Obi")
	require.NoError(t, err)
	body, err := f.device.Attestation(opts.Response.Challenge)
	require.NoError(t, err)
	cred, err := f.enroller.Finish(ctx, studentID, body)
	require.NoError(t, err)
	return cred
}

func (f *fixture) assertion(t *testing.T, studentID string, opts ...passkeytest.AssertOption) []byte {
	t.Helper()
	req, err := f.verifier.Begin(context.Background(), studentID)
	require.NoError(t, err)
	body, err := f.device.Assertion(req.Response.Challenge, opts...)
	require.NoError(t, err)
	return body
}

func TestEnrollment(t *testing.T) {
	f := newFixture(t)
	cred := f.enroll(t, "stu-1")

	assert.Equal(t, f.device.CredentialID, cred.CredentialID)
	want, err := f.device.PublicKeyCOSE()
	require.NoError(t, err)
	assert.Equal(t, want, cred.PublicKey)

	_, err = f.enroller.Begin(context.Background(), "stu-1", "")
	assert.ErrorIs(t, err, apperr.ErrAlreadyRegistered)
}

func TestEnrollmentOptions(t *testing.T) {
	f := newFixture(t)
	opts, err := f.enroller.Begin(context.Background(), "stu-1", "")
	require.NoError(t, err)

	assert.Equal(t, rpID, opts.Response.RelyingParty.ID)
	assert.Equal(t, "stu-1", opts.Response.User.DisplayName)
	assert.Len(t, opts.Response.Challenge, challenge.Size)
	assert.Equal(t, protocol.VerificationRequired, opts.Response.AuthenticatorSelection.UserVerification)
	assert.Equal(t, protocol.PreferNoAttestation, opts.Response.Attestation)
}

func TestEnrollmentWrongChallenge(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.enroller.Begin(ctx, "stu-1", "")
	require.NoError(t, err)

	body, err := f.device.Attestation([]byte("not-the-issued-challenge"))
	require.NoError(t, err)
	_, err = f.enroller.Finish(ctx, "stu-1", body)
	assert.ErrorIs(t, err, apperr.ErrSignatureInvalid)

	_, err = f.creds.Get(ctx, "stu-1")
	assert.ErrorIs(t, err, apperr.ErrUnregistered)
}

func TestEnrollmentDuplicateCredentialID(t *testing.T) {
	f := newFixture(t)
	f.enroll(t, "stu-1")

	ctx := context.Background()
	opts, err := f.enroller.Begin(ctx, "stu-2", "")
	require.NoError(t, err)
	body, err := f.device.Attestation(opts.Response.Challenge)
	require.NoError(t, err)
	_, err = f.enroller.Finish(ctx, "stu-2", body)
	assert.ErrorIs(t, err, apperr.ErrDuplicateCredentialID)
}

func TestVerifySuccess(t *testing.T) {
	f := newFixture(t)
	f.enroll(t, "stu-1")

	count, err := f.verifier.Verify(context.Background(), "stu-1", f.assertion(t, "stu-1"), challenge.PurposeAuthentication)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), count)

	// The verifier never stores the counter itself.
	cred, err := f.creds.Get(context.Background(), "stu-1")
	require.NoError(t, err)
	assert.Equal(t, uint32(0), cred.SignCount)
}

func TestVerifyRejections(t *testing.T) {
	tests := []struct {
		name string
		opts []passkeytest.AssertOption
		want error
	}{
		{"foreign origin", []passkeytest.AssertOption{passkeytest.WithOrigin("https://evil.example.com")}, apperr.ErrOriginMismatch},
		{"foreign relying party", []passkeytest.AssertOption{passkeytest.WithRPID("evil.example.com")}, apperr.ErrOriginMismatch},
		{"tampered signature", []passkeytest.AssertOption{passkeytest.WithTamperedSignature()}, apperr.ErrSignatureInvalid},
		{"registration ceremony", []passkeytest.AssertOption{passkeytest.WithCeremony(protocol.CreateCeremony)}, apperr.ErrSignatureInvalid},
		{"other credential", []passkeytest.AssertOption{passkeytest.WithCredentialID([]byte("someone-else"))}, apperr.ErrSignatureInvalid},
		{"zero counter", []passkeytest.AssertOption{passkeytest.WithCounter(0)}, apperr.ErrReplayDetected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.enroll(t, "stu-1")

			_, err := f.verifier.Verify(context.Background(), "stu-1", f.assertion(t, "stu-1", tt.opts...), challenge.PurposeAuthentication)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestVerifyReplayForEveryPriorCounter(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.enroll(t, "stu-1")
	require.NoError(t, f.creds.AdvanceCounter(ctx, "stu-1", 5))

	for prior := uint32(0); prior <= 5; prior++ {
		_, err := f.verifier.Verify(ctx, "stu-1", f.assertion(t, "stu-1", passkeytest.WithCounter(prior)), challenge.PurposeAuthentication)
		assert.ErrorIs(t, err, apperr.ErrReplayDetected, "counter %d", prior)
	}

	count, err := f.verifier.Verify(ctx, "stu-1", f.assertion(t, "stu-1", passkeytest.WithCounter(6)), challenge.PurposeAuthentication)
	require.NoError(t, err)
	assert.Equal(t, uint32(6), count)
}

func TestVerifyChallengeLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.enroll(t, "stu-1")

	body := f.assertion(t, "stu-1")
	_, err := f.verifier.Verify(ctx, "stu-1", body, challenge.PurposeAuthentication)
	require.NoError(t, err)

	// Same response again: the challenge is gone.
	_, err = f.verifier.Verify(ctx, "stu-1", body, challenge.PurposeAuthentication)
	assert.ErrorIs(t, err, apperr.ErrNoActiveChallenge)

	body = f.assertion(t, "stu-1")
	f.clock.Advance(2 * time.Minute)
	_, err = f.verifier.Verify(ctx, "stu-1", body, challenge.PurposeAuthentication)
	assert.ErrorIs(t, err, apperr.ErrExpired)
}

func TestVerifyUnregistered(t *testing.T) {
	f := newFixture(t)
	_, err := f.verifier.Verify(context.Background(), "ghost", []byte(`{}`), challenge.PurposeAuthentication)
	assert.ErrorIs(t, err, apperr.ErrUnregistered)

	_, err = f.verifier.Begin(context.Background(), "ghost")
	assert.ErrorIs(t, err, apperr.ErrUnregistered)
}

func TestVerifyMalformedAssertion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.enroll(t, "stu-1")
	_, err := f.verifier.Begin(ctx, "stu-1")
	require.NoError(t, err)

	_, err = f.verifier.Verify(ctx, "stu-1", []byte(`{"id":"!!","type":"public-key"}`), challenge.PurposeAuthentication)
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)
}

func TestVerifyRequiresUserVerification(t *testing.T) {
	f := newFixture(t)
	f.enroll(t, "stu-1")
	f.device.UserVerified = false

	_, err := f.verifier.Verify(context.Background(), "stu-1", f.assertion(t, "stu-1"), challenge.PurposeAuthentication)
	assert.ErrorIs(t, err, apperr.ErrSignatureInvalid)
}

func TestConfigValidate(t *testing.T) {
	cfg := passkey.Config{RPID: "attend.example.edu"}
	cfg.SetDefaults()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, []string{"https://attend.example.edu"}, cfg.RPOrigins)
	assert.Equal(t, time.Minute, cfg.Timeout)

	assert.Error(t, (&passkey.Config{}).Validate())
	assert.Error(t, (&passkey.Config{RPID: "x", RPOrigins: []string{"not a url"}}).Validate())
}
