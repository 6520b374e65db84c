package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/jashmhta/HMSSSS-sub000/internal/platform/auth"
)

const apiPrefix = "/api/v1/"

// AuditEntry captures who accessed what, when, from where, and the action type.
type AuditEntry struct {
	UserID       string    `json:"user_id"`
	UserRoles    []string  `json:"user_roles"`
	Action       string    `json:"action"`
	ResourceType string    `json:"resource_type"`
	ResourceID   string    `json:"resource_id"`
	PatientID    string    `json:"patient_id"`
	Method       string    `json:"method"`
	Path         string    `json:"path"`
	StatusCode   int       `json:"status_code"`
	IPAddress    string    `json:"ip_address"`
	UserAgent    string    `json:"user_agent"`
	RequestID    string    `json:"request_id"`
	Timestamp    time.Time `json:"occurred_at"`
}

// AuditRecorder persists audit entries.
type AuditRecorder interface {
	RecordAccess(ctx context.Context, entry AuditEntry) error
}

// AuditRecorderFunc is a function adapter for AuditRecorder.
type AuditRecorderFunc func(ctx context.Context, entry AuditEntry) error

func (f AuditRecorderFunc) RecordAccess(ctx context.Context, entry AuditEntry) error {
	return f(ctx, entry)
}

// Audit records every /api/v1 request after the handler ran. Recording
// failures are logged and never fail the request.
func Audit(logger zerolog.Logger, recorder AuditRecorder) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			path := req.URL.Path
			if !isAuditablePath(path) {
				return next(c)
			}

			err := next(c)

			status := c.Response().Status
			if he, ok := err.(*echo.HTTPError); ok {
				status = he.Code
			}

			ctx := req.Context()
			resourceType, resourceID := extractResource(path)
			entry := AuditEntry{
				UserID:       auth.UserIDFromContext(ctx),
				UserRoles:    auth.RolesFromContext(ctx),
				Action:       httpMethodToAction(req.Method),
				ResourceType: resourceType,
				ResourceID:   resourceID,
				PatientID:    extractPatientID(c),
				Method:       req.Method,
				Path:         path,
				StatusCode:   status,
				IPAddress:    c.RealIP(),
				UserAgent:    req.UserAgent(),
				Timestamp:    time.Now().UTC(),
			}
			if rid, ok := c.Get("request_id").(string); ok {
				entry.RequestID = rid
			}

			if recorder != nil {
				// The request context may already be cancelled.
				recCtx := WithRequestID(context.WithoutCancel(ctx), entry.RequestID)
				if recErr := recorder.RecordAccess(recCtx, entry); recErr != nil {
					logger.Error().Err(recErr).
						Str("request_id", entry.RequestID).
						Msg("failed to record audit entry")
				}
			}

			logger.Debug().
				Str("type", "audit").
				Str("request_id", entry.RequestID).
				Str("user_id", entry.UserID).
				Str("resource_type", entry.ResourceType).
				Str("patient_id", entry.PatientID).
				Str("action", entry.Action).
				Int("status", entry.StatusCode).
				Msg("access")

			return err
		}
	}
}

func isAuditablePath(path string) bool {
	return strings.HasPrefix(path, apiPrefix) && !strings.HasPrefix(path, apiPrefix+"auth/login")
}

func httpMethodToAction(method string) string {
	switch method {
	case http.MethodPost:
		return "create"
	case http.MethodPut, http.MethodPatch:
		return "update"
	case http.MethodDelete:
		return "delete"
	default:
		return "read"
	}
}

// extractResource splits an API path into a resource type and the first id.
//
//	/api/v1/patients/<id>             -> patients, <id>
//	/api/v1/laboratory/tests/<id>/... -> laboratory/tests, <id>
//	/api/v1/billing/reports/summary   -> billing/reports/summary, ""
func extractResource(path string) (string, string) {
	segments := strings.Split(strings.Trim(strings.TrimPrefix(path, apiPrefix), "/"), "/")
	var kind []string
	for _, s := range segments {
		if isUUIDLike(s) {
			return strings.Join(kind, "/"), s
		}
		if s != "" {
			kind = append(kind, s)
		}
	}
	if len(kind) == 0 {
		return "unknown", ""
	}
	return strings.Join(kind, "/"), ""
}

// extractPatientID looks for /patients/<id> in the path, then a patient_id
// query parameter.
func extractPatientID(c echo.Context) string {
	path := c.Request().URL.Path
	if strings.HasPrefix(path, apiPrefix+"patients/") {
		seg := strings.SplitN(strings.TrimPrefix(path, apiPrefix+"patients/"), "/", 2)[0]
		if isUUIDLike(seg) {
			return seg
		}
	}
	if pid := c.QueryParam("patient_id"); isUUIDLike(pid) {
		return pid
	}
	for _, name := range c.ParamNames() {
		if name == "patientId" || name == "patient_id" {
			if pid := c.Param(name); isUUIDLike(pid) {
				return pid
			}
		}
	}
	return ""
}

func isUUIDLike(s string) bool {
	if s == "" {
		return false
	}
	_, err := uuid.Parse(s)
	return err == nil
}
