package middleware

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/ft-transcendence/server/audit"
	"github.com/gin-gonic/gin"
)

// maxAuditBody caps how much of a response body ends up in the trail.
const maxAuditBody = 4 << 10

// auditBodyWriter tees the response body so the audit entry can carry it.
type auditBodyWriter struct {
	gin.ResponseWriter
	body bytes.Buffer
}

func (w *auditBodyWriter) Write(b []byte) (int, error) {
	if rem := maxAuditBody - w.body.Len(); rem > 0 {
		if len(b) > rem {
			w.body.Write(b[:rem])
		} else {
			w.body.Write(b)
		}
	}
	return w.ResponseWriter.Write(b)
}

// AuditLog records every mutating API request in the audit trail.
// Reads are skipped to keep the table small.
func AuditLog(svc *audit.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == "GET" || c.Request.Method == "HEAD" {
			c.Next()
			return
		}
		w := &auditBodyWriter{ResponseWriter: c.Writer}
		c.Writer = w
		start := time.Now()
		c.Next()

		entry := audit.Entry{
			TraceID:    GetTraceID(c),
			Nick:       GetUserNick(c),
			Action:     c.Request.Method + " " + c.FullPath(),
			Request:    c.Request.URL.RequestURI(),
			IP:         c.ClientIP(),
			DurationMs: time.Since(start).Milliseconds(),
		}
		if id := GetUserID(c); id != 0 {
			entry.UserID = &id
		}
		if body := w.body.Bytes(); len(body) > 0 {
			if json.Valid(body) {
				entry.Response = json.RawMessage(body)
			} else {
				entry.Response = string(body)
			}
		}
		if len(c.Errors) > 0 {
			entry.Error = c.Errors.String()
		}
		svc.Log(entry)
	}
}
