package server

import (
	"errors"
	"net/http"
	"slices"
	"time"

	"github.com/gin-gonic/gin"

	"PortfolioPulse/internal/analytics"
	"PortfolioPulse/internal/model"
	"PortfolioPulse/internal/recorder"
	"PortfolioPulse/internal/scheduler"
)

// DefaultPriceWindow is the range served when no from is given.
const DefaultPriceWindow = 30 * 24 * time.Hour

type HealthController struct {
	trigger Trigger
	jobs    []string
}

func NewHealthController(t Trigger, jobs []string) *HealthController {
	return &HealthController{trigger: t, jobs: jobs}
}

func (ctrl *HealthController) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/health", ctrl.healthCheck)
	router.HEAD("/health", ctrl.healthCheck)
}

func (ctrl *HealthController) healthCheck(c *gin.Context) {
	running := gin.H{}
	if ctrl.trigger != nil {
		for _, job := range ctrl.jobs {
			running[job] = ctrl.trigger.Running(job)
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "running": running})
}

type IngestController struct {
	trigger Trigger
	runs    recorder.Reader
	jobs    []string
}

func NewIngestController(t Trigger, runs recorder.Reader, jobs []string) *IngestController {
	return &IngestController{trigger: t, runs: runs, jobs: jobs}
}

func (ctrl *IngestController) RegisterRoutes(router *gin.RouterGroup) {
	router.POST("/ingest/:job", ctrl.runJob)
	router.GET("/runs/latest", ctrl.latest)
}

// runJob runs the job synchronously and returns its report.
func (ctrl *IngestController) runJob(c *gin.Context) {
	job := c.Param("job")
	if !slices.Contains(ctrl.jobs, job) {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown job " + job})
		return
	}
	report, err := ctrl.trigger.Trigger(job)
	switch {
	case errors.Is(err, scheduler.ErrBusy):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, model.ErrPreconditionFailure):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error(), "kind": model.KindPreconditionFailure})
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusOK, report)
	}
}

func (ctrl *IngestController) latest(c *gin.Context) {
	if ctrl.runs == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "run history is not configured"})
		return
	}
	report, err := ctrl.runs.Latest(c.Request.Context(), c.Query("job"))
	switch {
	case errors.Is(err, recorder.ErrNoRuns):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusOK, report)
	}
}

type PriceController struct {
	prices  PriceReader
	signals SignalSource
	now     func() time.Time
}

func NewPriceController(prices PriceReader, signals SignalSource) *PriceController {
	return &PriceController{prices: prices, signals: signals, now: time.Now}
}

func (ctrl *PriceController) RegisterRoutes(router *gin.RouterGroup) {
	group := router.Group("/prices")
	{
		group.GET("/:ticker", ctrl.getPrices)
		group.GET("/:ticker/signal", ctrl.getSignal)
	}
}

func (ctrl *PriceController) getPrices(c *gin.Context) {
	ticker := model.NormalizeTicker(c.Param("ticker"))
	to := model.TradingDay(ctrl.now())
	if v := c.Query("to"); v != "" {
		d, err := model.ParseDay(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid to: " + err.Error()})
			return
		}
		to = d
	}
	from := to.Add(-DefaultPriceWindow)
	if v := c.Query("from"); v != "" {
		d, err := model.ParseDay(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid from: " + err.Error()})
			return
		}
		from = d
	}
	if to.Before(from) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "from is after to"})
		return
	}

	prices, err := ctrl.prices.Range(c.Request.Context(), ticker, from, to)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"ticker": ticker,
		"from":   from.Format(model.DateLayout),
		"to":     to.Format(model.DateLayout),
		"prices": prices,
	})
}

func (ctrl *PriceController) getSignal(c *gin.Context) {
	sig, err := ctrl.signals.Signal(c.Request.Context(), c.Param("ticker"))
	switch {
	case errors.Is(err, analytics.ErrInsufficientData):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusOK, sig)
	}
}
