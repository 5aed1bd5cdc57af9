package apperr

var (
	ErrInvalidInput          = New(CodeInvalidInput, "invalid input")
	ErrInvalidCoordinate     = New(CodeInvalidCoordinate, "invalid coordinate")
	ErrNotFound              = New(CodeNotFound, "not found")
	ErrUnregistered          = New(CodeUnregistered, "no credential registered for student")
	ErrAlreadyRegistered     = New(CodeAlreadyRegistered, "student already has a registered credential")
	ErrDuplicateCredentialID = New(CodeDuplicateCredentialID, "credential id is registered to another student")
	ErrNoActiveChallenge     = New(CodeNoActiveChallenge, "no active challenge")
	ErrExpired               = New(CodeExpired, "challenge expired")
	ErrSignatureInvalid      = New(CodeSignatureInvalid, "assertion signature invalid")
	ErrOriginMismatch        = New(CodeOriginMismatch, "assertion origin or relying party mismatch")
	ErrReplayDetected        = New(CodeReplayDetected, "signature counter did not increase")
	ErrTooFar                = New(CodeTooFar, "outside the allowed radius")
	ErrNotCheckedIn          = New(CodeNotCheckedIn, "not checked in today")
)
