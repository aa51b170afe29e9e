package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"tradepilot/internal/ledger"
	"tradepilot/internal/risk"
)

// getStatus reports engine run state and account totals.
func (s *Server) getStatus(c *gin.Context) {
	snap := s.Balances.Snapshot()
	resp := gin.H{
		"running":        s.Engine.Running(),
		"open_positions": s.Ledger.OpenCount(),
		"buying_power":   snap.BuyingPower,
		"realized_pnl":   snap.RealizedPnL,
		"symbols":        s.Meta.Symbols,
		"use_mock_feed":  s.Meta.UseMockFeed,
		"version":        s.Meta.Version,
		"uptime_seconds": int(time.Since(s.Meta.StartedAt).Seconds()),
		"server_time":    time.Now().UTC(),
	}
	if s.Queue != nil {
		resp["persistence"] = s.Queue.Snapshot()
	}
	c.JSON(http.StatusOK, resp)
}

type positionView struct {
	ledger.Position
	ProfitLoss        float64 `json:"profit_loss"`
	ProfitLossPercent float64 `json:"profit_loss_percent"`
}

func (s *Server) getPositions(c *gin.Context) {
	positions := s.Ledger.Positions()
	views := make([]positionView, 0, len(positions))
	for _, p := range positions {
		views = append(views, positionView{
			Position:          p,
			ProfitLoss:        p.ProfitLoss(),
			ProfitLossPercent: p.ProfitLossPercent(),
		})
	}
	c.JSON(http.StatusOK, gin.H{"positions": views})
}

func (s *Server) getTrades(c *gin.Context) {
	limit := 100
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 1000 {
			limit = n
		}
	}

	trades, err := s.Store.LoadTrades(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load trades"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"trades": trades})
}

func (s *Server) getAnalyses(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"analyses": s.Analyzer.LastAll()})
}

func (s *Server) getBalance(c *gin.Context) {
	c.JSON(http.StatusOK, s.Balances.Snapshot())
}

func (s *Server) getSettings(c *gin.Context) {
	c.JSON(http.StatusOK, s.Engine.Settings())
}

// updateSettings applies a partial settings update. The engine swaps the
// merged settings in atomically, restarting its loops if they were running.
func (s *Server) updateSettings(c *gin.Context) {
	var patch risk.SettingsPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid settings payload"})
		return
	}

	merged := s.Engine.UpdateSettings(c.Request.Context(), patch)
	c.JSON(http.StatusOK, merged)
}

func (s *Server) startEngine(c *gin.Context) {
	// The loops outlive this request, so they run under the server's base
	// context rather than the request's.
	s.Engine.Start(s.baseCtx())
	c.JSON(http.StatusOK, gin.H{"running": true})
}

func (s *Server) stopEngine(c *gin.Context) {
	s.Engine.Stop()
	c.JSON(http.StatusOK, gin.H{"running": false})
}

func (s *Server) closePosition(c *gin.Context) {
	id := c.Param("id")
	trade, err := s.Engine.ClosePosition(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "position not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"trade": trade})
}
