package handlers

import (
	"bytes"
	"encoding/csv"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/logger"

	"luckydraw/internal/middleware"
	"luckydraw/internal/models"
	"luckydraw/internal/services"
)

// HTTPHandler holds the dependencies for the HTTP handlers, like the lottery service.
type HTTPHandler struct {
	service        *services.LotteryService
	hub            *WebSocketHub
	drawDelay      time.Duration
	operatorSecret string
}

// NewHTTPHandler creates a new HTTPHandler. drawDelay is the pause before
// a draw result is revealed; operatorSecret guards the settings routes.
func NewHTTPHandler(service *services.LotteryService, hub *WebSocketHub, drawDelay time.Duration, operatorSecret string) *HTTPHandler {
	return &HTTPHandler{
		service:        service,
		hub:            hub,
		drawDelay:      drawDelay,
		operatorSecret: operatorSecret,
	}
}

// RegisterPublicRoutes registers routes that do not depend on a tenant.
func (h *HTTPHandler) RegisterPublicRoutes(router gin.IRouter) {
	router.GET("/healthz", h.Health)
	router.GET("/api/prizes", h.GetPrizes)
}

// RegisterTenantRoutes registers routes that act on the tenant's lottery.
// The group must run TenantMiddleware.
func (h *HTTPHandler) RegisterTenantRoutes(router *gin.RouterGroup) {
	router.GET("/api/state", h.GetState)
	router.GET("/api/probabilities", h.GetProbabilities)
	router.POST("/api/draw", h.PerformDraw)
	router.GET("/api/winners/export", h.ExportWinnersCSV)
	router.GET("/ws", h.HandleWebSocket)

	operator := router.Group("/api")
	operator.Use(middleware.OperatorAuth(h.operatorSecret))
	{
		operator.PUT("/probabilities", h.SaveProbabilities)
		operator.POST("/reset", h.ResetLottery)
	}
}

// Health reports liveness.
func (h *HTTPHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// GetPrizes returns the static prize table.
func (h *HTTPHandler) GetPrizes(c *gin.Context) {
	engine := h.service.Engine()
	c.JSON(http.StatusOK, gin.H{
		"prizes":     engine.Tiers(),
		"totalCount": engine.TotalCount(),
	})
}

// GetState returns winners, probabilities and the status bar summary.
func (h *HTTPHandler) GetState(c *gin.Context) {
	state, err := h.service.LoadState(c.Request.Context(), middleware.TenantID(c))
	if err != nil {
		h.internalError(c, "Failed to load lottery state", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"state":  state,
		"status": h.service.StatusOf(state),
	})
}

// GetProbabilities returns the saved probabilities formatted for editing.
func (h *HTTPHandler) GetProbabilities(c *gin.Context) {
	state, err := h.service.LoadState(c.Request.Context(), middleware.TenantID(c))
	if err != nil {
		h.internalError(c, "Failed to load probabilities", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"inputs":           state.Inputs,
		"probabilities":    state.Probabilities,
		"totalProbability": h.service.Engine().TotalProbability(state.Probabilities),
	})
}

type saveProbabilitiesRequest struct {
	Inputs map[int]string `json:"inputs" binding:"required"`
}

// SaveProbabilities parses the edited strings and replaces the saved map.
// Unreadable strings fall back to the default value instead of failing.
func (h *HTTPHandler) SaveProbabilities(c *gin.Context) {
	var req saveProbabilitiesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request",
			"details": err.Error(),
		})
		return
	}

	probs := h.service.ParseEdited(req.Inputs)
	warnings, err := h.service.SaveProbabilities(c.Request.Context(), middleware.TenantID(c), probs)
	if err != nil {
		h.internalError(c, "Failed to save probabilities", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":          true,
		"probabilities":    probs,
		"inputs":           h.service.FormatForEdit(probs),
		"totalProbability": h.service.Engine().TotalProbability(probs),
		"warnings":         warnings,
	})
}

// PerformDraw waits for the pacing delay, then draws once. A client that
// disconnects during the delay does not consume a draw.
func (h *HTTPHandler) PerformDraw(c *gin.Context) {
	ctx := c.Request.Context()
	tenantID := middleware.TenantID(c)

	if h.drawDelay > 0 {
		timer := time.NewTimer(h.drawDelay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			logger.Infof("Draw for tenant %s abandoned during pacing", tenantID)
			c.AbortWithStatus(http.StatusRequestTimeout)
			return
		}
	}

	result, record, err := h.service.Draw(ctx, tenantID)
	if err != nil {
		h.internalError(c, "Failed to draw", err)
		return
	}

	status, err := h.service.Status(ctx, tenantID)
	if err != nil {
		h.internalError(c, "Failed to load lottery state", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"result": result,
		"winner": record,
		"status": status,
	})
}

type resetRequest struct {
	Confirm bool `json:"confirm"`
}

// ResetLottery clears the winner list once the caller confirms.
func (h *HTTPHandler) ResetLottery(c *gin.Context) {
	var req resetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request",
			"details": err.Error(),
		})
		return
	}

	err := h.service.Reset(c.Request.Context(), middleware.TenantID(c), req.Confirm)
	if errors.Is(err, services.ErrResetNotConfirmed) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		h.internalError(c, "Failed to reset lottery", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// ExportWinnersCSV handles the request to download the winner records as a CSV file.
// The file is built in memory so a failure can still be reported as a 500.
func (h *HTTPHandler) ExportWinnersCSV(c *gin.Context) {
	state, err := h.service.LoadState(c.Request.Context(), middleware.TenantID(c))
	if err != nil {
		h.internalError(c, "Failed to load winners", err)
		return
	}

	var buf bytes.Buffer
	if err := writeWinnersCSV(&buf, h.service.Engine(), state.Winners); err != nil {
		h.internalError(c, "Failed to export winners", err)
		return
	}

	c.Header("Content-Disposition", "attachment;filename=lottery_winners.csv")
	c.Data(http.StatusOK, "text/csv; charset=utf-8", buf.Bytes())
}

// writeWinnersCSV writes a UTF-8 BOM (so Excel picks the right encoding),
// a header row and one row per winner in draw order.
func writeWinnersCSV(out io.Writer, engine *services.DrawEngine, winners []models.WinnerRecord) error {
	if _, err := io.WriteString(out, "\xef\xbb\xbf"); err != nil {
		return err
	}

	w := csv.NewWriter(out)
	if err := w.Write([]string{"序号", "奖品等级", "奖品名称", "中奖时间"}); err != nil {
		return err
	}
	for i, record := range winners {
		name := ""
		if tier, ok := engine.Tier(record.Level); ok {
			name = tier.Icon + " " + tier.Name
		}
		row := []string{strconv.Itoa(i + 1), strconv.Itoa(record.Level), name, record.Time}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func (h *HTTPHandler) internalError(c *gin.Context, msg string, err error) {
	logger.Errorf("%s: %v", msg, err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": msg})
}
