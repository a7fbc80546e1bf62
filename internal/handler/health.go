package handler

import (
	"context"
	"net/http"
	"time"

	"retailpos/internal/infra"

	"github.com/gin-gonic/gin"
)

// Pinger is satisfied by the database and Redis probes.
type Pinger func(ctx context.Context) error

// Health reports DB and Redis connectivity plus the SMTP breaker state.
// An open breaker degrades receipt delivery only, so it never fails the check.
func Health(db, redis Pinger, smtpCB *infra.CircuitBreaker) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
		defer cancel()

		dbStatus := "connected"
		if db == nil || db(ctx) != nil {
			dbStatus = "error"
		}

		redisStatus := "connected"
		if redis == nil || redis(ctx) != nil {
			redisStatus = "error"
		}

		smtpStatus := "disabled"
		if smtpCB != nil {
			smtpStatus = smtpCB.State().String()
		}

		status := http.StatusOK
		if dbStatus != "connected" || redisStatus != "connected" {
			status = http.StatusServiceUnavailable
		}

		c.JSON(status, gin.H{
			"ok":    status == http.StatusOK,
			"db":    dbStatus,
			"redis": redisStatus,
			"smtp":  smtpStatus,
		})
	}
}
