package apperr

type Code string

const (
	CodeInvalidInput          Code = "INVALID_INPUT"
	CodeInvalidCoordinate     Code = "INVALID_COORDINATE"
	CodeNotFound              Code = "NOT_FOUND"
	CodeUnregistered          Code = "UNREGISTERED"
	CodeAlreadyRegistered     Code = "ALREADY_REGISTERED"
	CodeDuplicateCredentialID Code = "DUPLICATE_CREDENTIAL_ID"
	CodeNoActiveChallenge     Code = "NO_ACTIVE_CHALLENGE"
	CodeExpired               Code = "EXPIRED"
	CodeSignatureInvalid      Code = "SIGNATURE_INVALID"
	CodeOriginMismatch        Code = "ORIGIN_MISMATCH"
	CodeReplayDetected        Code = "REPLAY_DETECTED"
	CodeTooFar                Code = "TOO_FAR"
	CodeNotCheckedIn          Code = "NOT_CHECKED_IN"
	CodeInternal              Code = "INTERNAL"
)

// Verification reports whether the code belongs to the assertion
// verification family. These are terminal: the ceremony must restart.
func (c Code) Verification() bool {
	switch c {
	case CodeNoActiveChallenge, CodeExpired, CodeSignatureInvalid, CodeOriginMismatch, CodeReplayDetected:
		return true
	}
	return false
}
