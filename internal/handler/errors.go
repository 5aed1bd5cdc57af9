package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"campusattend/internal/apperr"
)

// StatusOf maps an error code to its HTTP status.
func StatusOf(code apperr.Code) int {
	switch code {
	case apperr.CodeInvalidInput, apperr.CodeInvalidCoordinate:
		return http.StatusBadRequest
	case apperr.CodeNotFound:
		return http.StatusNotFound
	case apperr.CodeUnregistered:
		return http.StatusPreconditionFailed
	case apperr.CodeAlreadyRegistered, apperr.CodeDuplicateCredentialID, apperr.CodeNotCheckedIn:
		return http.StatusConflict
	case apperr.CodeTooFar:
		return http.StatusForbidden
	}
	if code.Verification() {
		return http.StatusUnauthorized
	}
	return http.StatusInternalServerError
}

func respondError(c *gin.Context, log logrus.FieldLogger, err error) {
	code := apperr.CodeOf(err)
	body := gin.H{"code": code, "message": apperr.MessageOf(err)}

	var tooFar *apperr.TooFarError
	if errors.As(err, &tooFar) {
		body["distance_m"] = tooFar.DistanceMeters
		body["allowed_radius_m"] = tooFar.AllowedRadius
		body["location"] = tooFar.LocationName
	}
	if code == apperr.CodeInternal {
		log.WithError(err).WithField("path", c.FullPath()).Error("request failed")
	}
	c.AbortWithStatusJSON(StatusOf(code), gin.H{"error": body})
}
