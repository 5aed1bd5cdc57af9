// Package handler is the HTTP adapter over the attendance core.
package handler

import (
	"context"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"campusattend/internal/apperr"
	"campusattend/internal/attendance"
	"campusattend/internal/auth"
	"campusattend/internal/checkin"
	"campusattend/internal/credential"
	"campusattend/internal/location"
	"campusattend/internal/passkey"
)

// maxBodyBytes bounds request bodies; attestation objects are the largest.
const maxBodyBytes = 64 << 10

// HealthCheck reports named dependency health.
type HealthCheck func(ctx context.Context) map[string]bool

type Handler struct {
	Engine      *checkin.Engine
	Locations   *location.Registry
	Ledger      *attendance.Ledger
	Credentials *credential.Store
	Enroller    *passkey.Enroller
	Verifier    *passkey.Verifier
	Health      HealthCheck
	Log         logrus.FieldLogger

	SigningKey string
	Issuer     string
}

// Mount registers every route on r.
func (h *Handler) Mount(r gin.IRouter) {
	r.GET("/healthz", h.Healthz)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	bearer := auth.Bearer(h.SigningKey, h.Issuer)

	student := r.Group("/v1", bearer, auth.RequireRole(auth.RoleStudent))
	student.GET("/locations", h.ListLocations)
	student.POST("/passkeys/registration/options", h.RegistrationOptions)
	student.POST("/passkeys/registration", h.FinishRegistration)
	student.POST("/passkeys/assertion/options", h.AssertionOptions)
	student.POST("/checkins", h.CheckIn)
	student.POST("/checkouts", h.CheckOut)
	student.GET("/attendance/today", h.Today)
	student.GET("/attendance/me", h.MyAttendance)

	admin := r.Group("/v1/admin", bearer, auth.RequireRole(auth.RoleAdmin))
	admin.POST("/locations", h.CreateLocation)
	admin.PUT("/locations/:id", h.UpdateLocation)
	admin.GET("/attendance", h.ListAttendance)
	admin.GET("/attendance/summary", h.AttendanceSummary)
	admin.DELETE("/credentials/:student_id", h.ResetCredential)
}

func (h *Handler) fail(c *gin.Context, err error) {
	respondError(c, h.Log, err)
}

func (h *Handler) Healthz(c *gin.Context) {
	checks := map[string]bool{}
	if h.Health != nil {
		checks = h.Health(c.Request.Context())
	}
	status := http.StatusOK
	for _, ok := range checks {
		if !ok {
			status = http.StatusServiceUnavailable
		}
	}
	c.JSON(status, gin.H{"status": http.StatusText(status), "checks": checks})
}

func (h *Handler) ListLocations(c *gin.Context) {
	locs, err := h.Locations.ListAll(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	out := make([]locationDTO, 0, len(locs))
	for _, l := range locs {
		out = append(out, toLocation(l))
	}
	c.JSON(http.StatusOK, gin.H{"locations": out})
}

func (h *Handler) RegistrationOptions(c *gin.Context) {
	var req registrationOptionsRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			h.fail(c, apperr.InvalidInput("invalid JSON body"))
			return
		}
	}
	opts, err := h.Enroller.Begin(c.Request.Context(), auth.Subject(c), req.DisplayName)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, opts)
}

func (h *Handler) FinishRegistration(c *gin.Context) {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxBodyBytes))
	if err != nil {
		h.fail(c, apperr.InvalidInput("request body too large"))
		return
	}
	cred, err := h.Enroller.Finish(c.Request.Context(), auth.Subject(c), body)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.Log.WithField("student_id", cred.StudentID).Info("passkey registered")
	c.JSON(http.StatusCreated, toCredential(cred))
}

func (h *Handler) AssertionOptions(c *gin.Context) {
	opts, err := h.Verifier.Begin(c.Request.Context(), auth.Subject(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, opts)
}

func (h *Handler) CheckIn(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBodyBytes)
	var req checkInRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, apperr.InvalidInput("invalid JSON body"))
		return
	}
	if req.Latitude == nil || req.Longitude == nil {
		h.fail(c, apperr.InvalidInput("latitude and longitude are required"))
		return
	}
	if string(req.Assertion) == "null" {
		req.Assertion = nil
	}
	out, err := h.Engine.CheckIn(c.Request.Context(), checkin.Request{
		StudentID:  auth.Subject(c),
		LocationID: req.LocationID,
		Latitude:   *req.Latitude,
		Longitude:  *req.Longitude,
		Assertion:  req.Assertion,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	status := http.StatusOK
	if out.Result == checkin.ResultCheckedIn {
		status = http.StatusCreated
	}
	c.JSON(status, toOutcome(out))
}

func (h *Handler) CheckOut(c *gin.Context) {
	out, err := h.Engine.CheckOut(c.Request.Context(), auth.Subject(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toOutcome(out))
}

func (h *Handler) Today(c *gin.Context) {
	today, err := h.Engine.Status(c.Request.Context(), auth.Subject(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	resp := gin.H{"day": attendance.FormatDay(today.Day), "state": today.State}
	if today.Entry != nil {
		resp["entry"] = toEntry(*today.Entry)
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) MyAttendance(c *gin.Context) {
	f, err := filterFromQuery(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	f.StudentID = auth.Subject(c)
	f.LocationID = ""
	h.list(c, f)
}

func (h *Handler) ListAttendance(c *gin.Context) {
	f, err := filterFromQuery(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.list(c, f)
}

func (h *Handler) list(c *gin.Context, f attendance.Filter) {
	entries, err := h.Ledger.List(c.Request.Context(), f)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": toEntries(entries)})
}

func (h *Handler) AttendanceSummary(c *gin.Context) {
	f, err := filterFromQuery(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	sum, err := h.Ledger.Summary(c.Request.Context(), f)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toSummary(sum))
}

func filterFromQuery(c *gin.Context) (attendance.Filter, error) {
	f := attendance.Filter{
		StudentID:  c.Query("student_id"),
		LocationID: c.Query("location_id"),
	}
	var err error
	if v := c.Query("from"); v != "" {
		if f.From, err = attendance.ParseDay(v); err != nil {
			return f, apperr.InvalidInput("'from' must be a YYYY-MM-DD date")
		}
	}
	if v := c.Query("to"); v != "" {
		if f.To, err = attendance.ParseDay(v); err != nil {
			return f, apperr.InvalidInput("'to' must be a YYYY-MM-DD date")
		}
	}
	if v := c.Query("limit"); v != "" {
		if f.Limit, err = strconv.Atoi(v); err != nil {
			return f, apperr.InvalidInput("'limit' must be an integer")
		}
	}
	if v := c.Query("offset"); v != "" {
		if f.Offset, err = strconv.Atoi(v); err != nil {
			return f, apperr.InvalidInput("'offset' must be an integer")
		}
	}
	return f, nil
}

func bindLocation(c *gin.Context) (location.Input, error) {
	var req locationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		return location.Input{}, apperr.InvalidInput("invalid JSON body")
	}
	return req.input()
}

func (h *Handler) CreateLocation(c *gin.Context) {
	in, err := bindLocation(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	loc, err := h.Locations.Create(c.Request.Context(), in)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.Log.WithFields(logrus.Fields{"location_id": loc.ID, "admin": auth.Subject(c)}).Info("location created")
	c.JSON(http.StatusCreated, toLocation(loc))
}

func (h *Handler) UpdateLocation(c *gin.Context) {
	in, err := bindLocation(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	loc, err := h.Locations.Update(c.Request.Context(), c.Param("id"), in)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.Log.WithFields(logrus.Fields{"location_id": loc.ID, "admin": auth.Subject(c)}).Info("location updated")
	c.JSON(http.StatusOK, toLocation(loc))
}

func (h *Handler) ResetCredential(c *gin.Context) {
	studentID := c.Param("student_id")
	if err := h.Credentials.Reset(c.Request.Context(), studentID); err != nil {
		h.fail(c, err)
		return
	}
	h.Log.WithFields(logrus.Fields{"student_id": studentID, "admin": auth.Subject(c)}).Warn("credential reset")
	c.Status(http.StatusNoContent)
}
