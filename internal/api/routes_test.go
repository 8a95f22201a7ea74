package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantfold/perparb/internal/database"
	"github.com/quantfold/perparb/internal/engine"
	"github.com/quantfold/perparb/internal/models"
	"github.com/quantfold/perparb/internal/venues"
)

func testRouter(t *testing.T) (*gin.Engine, *database.MemoryLedger) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	ledger := database.NewMemoryLedger()
	tracker := engine.NewPnLTracker(ledger, logger)
	manager := engine.NewPositionManager(
		venues.NewRegistry(),
		database.NewMemoryPositionStore(),
		tracker,
		nil,
		engine.PositionManagerConfig{},
		logger,
	)

	router := gin.New()
	SetupRoutes(router, Deps{
		Manager: manager,
		Tracker: tracker,
		Logger:  logger,
	})
	return router, ledger
}

func performRequest(router *gin.Engine, path string) *httptest.ResponseRecorder {
	recorder := httptest.NewRecorder()
	request := httptest.NewRequest(http.MethodGet, path, nil)
	router.ServeHTTP(recorder, request)
	return recorder
}

func TestHealthCheck_DisabledBackends(t *testing.T) {
	router, _ := testRouter(t)

	recorder := performRequest(router, "/health")
	require.Equal(t, http.StatusOK, recorder.Code)

	var response HealthResponse
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &response))
	assert.Equal(t, "ok", response.Status)
	assert.Equal(t, "disabled", response.Services.Database)
	assert.Equal(t, "disabled", response.Services.Redis)
}

func TestGetPositions_Empty(t *testing.T) {
	router, _ := testRouter(t)

	recorder := performRequest(router, "/api/v1/positions")
	require.Equal(t, http.StatusOK, recorder.Code)

	var response struct {
		Count     int               `json:"count"`
		Positions []models.Position `json:"positions"`
	}
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &response))
	assert.Equal(t, 0, response.Count)
	assert.Empty(t, response.Positions)
}

func TestGetPnLStats_RejectsUnknownPeriod(t *testing.T) {
	router, _ := testRouter(t)

	recorder := performRequest(router, "/api/v1/pnl?period=fortnight")
	assert.Equal(t, http.StatusBadRequest, recorder.Code)
	assert.Contains(t, recorder.Body.String(), "period must be one of")
}

func TestGetPnLStats_DefaultsToAll(t *testing.T) {
	router, ledger := testRouter(t)

	require.NoError(t, ledger.Append(context.Background(), &models.TradeResult{
		ID:             "trade-1",
		PositionID:     "pos-1",
		Pair:           "SOL-PERP",
		Kind:           models.TradeExit,
		Success:        true,
		RealizedPnLUSD: decimal.NewFromInt(42),
		ExecutedAt:     time.Now(),
	}))

	recorder := performRequest(router, "/api/v1/pnl")
	require.Equal(t, http.StatusOK, recorder.Code)

	var stats models.PnLStats
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &stats))
	assert.Equal(t, models.PeriodAll, stats.Period)
	assert.Equal(t, 1, stats.TradeCount)
	assert.True(t, stats.TotalPnLUSD.Equal(decimal.NewFromInt(42)))
}

func TestGetOpportunities_NoCache(t *testing.T) {
	router, _ := testRouter(t)

	recorder := performRequest(router, "/api/v1/opportunities")
	require.Equal(t, http.StatusOK, recorder.Code)
	assert.Contains(t, recorder.Body.String(), `"count":0`)
}
