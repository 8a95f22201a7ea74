// Package api exposes the read-only status surface: health, open
// positions, PnL stats and the latest scan results.
package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/quantfold/perparb/internal/database"
	"github.com/quantfold/perparb/internal/engine"
	"github.com/quantfold/perparb/internal/models"
)

type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version"`
	Services  Services  `json:"services"`
}

type Services struct {
	Database string `json:"database"`
	Redis    string `json:"redis"`
}

// Deps carries everything the handlers read. All endpoints are
// read-only; mutating the engine happens only through the scheduler.
type Deps struct {
	DB      *database.PostgresDB
	Redis   *database.RedisClient
	Cache   *database.SnapshotCache
	Manager *engine.PositionManager
	Tracker *engine.PnLTracker
	Logger  *logrus.Logger
}

func SetupRoutes(router *gin.Engine, deps Deps) {
	router.GET("/health", healthCheck(deps))

	v1 := router.Group("/api/v1")
	{
		v1.GET("/positions", getPositions(deps))
		v1.GET("/pnl", getPnLStats(deps))
		v1.GET("/opportunities", getOpportunities(deps))
	}
}

func healthCheck(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		response := HealthResponse{
			Status:    "ok",
			Timestamp: time.Now(),
			Version:   "1.0.0",
			Services: Services{
				Database: "ok",
				Redis:    "ok",
			},
		}

		if deps.DB != nil {
			if err := deps.DB.HealthCheck(c.Request.Context()); err != nil {
				response.Services.Database = "error"
				response.Status = "degraded"
			}
		} else {
			response.Services.Database = "disabled"
		}

		if deps.Redis != nil {
			if err := deps.Redis.HealthCheck(c.Request.Context()); err != nil {
				response.Services.Redis = "error"
				response.Status = "degraded"
			}
		} else {
			response.Services.Redis = "disabled"
		}

		statusCode := http.StatusOK
		if response.Status == "degraded" {
			statusCode = http.StatusServiceUnavailable
		}
		c.JSON(statusCode, response)
	}
}

func getPositions(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		positions := deps.Manager.ListOpen()
		c.JSON(http.StatusOK, gin.H{
			"count":     len(positions),
			"positions": positions,
		})
	}
}

// getPnLStats serves /api/v1/pnl?period=day|week|month|all.
func getPnLStats(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		period := models.PnLPeriod(c.DefaultQuery("period", string(models.PeriodAll)))
		switch period {
		case models.PeriodDay, models.PeriodWeek, models.PeriodMonth, models.PeriodAll:
		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": "period must be one of day, week, month, all"})
			return
		}

		stats, err := deps.Tracker.Stats(c.Request.Context(), period)
		if err != nil {
			deps.Logger.WithError(err).Error("Failed to compute pnl stats")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to compute stats"})
			return
		}
		c.JSON(http.StatusOK, stats)
	}
}

func getOpportunities(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		if deps.Cache == nil {
			c.JSON(http.StatusOK, gin.H{"count": 0, "opportunities": []models.ArbitrageOpportunity{}})
			return
		}

		opportunities, err := deps.Cache.Opportunities(c.Request.Context())
		if err != nil {
			deps.Logger.WithError(err).Error("Failed to read cached opportunities")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read opportunities"})
			return
		}
		failedVenues, err := deps.Cache.FailedVenues(c.Request.Context())
		if err != nil {
			deps.Logger.WithError(err).Warn("Failed to read failed venues")
			failedVenues = nil
		}

		c.JSON(http.StatusOK, gin.H{
			"count":         len(opportunities),
			"opportunities": opportunities,
			"failed_venues": failedVenues,
		})
	}
}
