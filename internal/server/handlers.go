package server

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/blingpick/blingpick/internal/ledger"
	"github.com/blingpick/blingpick/internal/picking"
)

const maxHistoryLimit = 200

type scanRequest struct {
	Code string `json:"code" binding:"required"`
}

type finalizeRequest struct {
	Confirmed bool `json:"confirmed"`
}

// finalizeResponse keeps the station contract: {ok:true} on success, or
// {faltantes:[...]} when shortfalls need confirmation.
type finalizeResponse struct {
	OK        bool     `json:"ok"`
	Faltantes []string `json:"faltantes"`
}

func (s *Server) fail(c *gin.Context, op string, err error, fallback string) {
	status, msg := errorResponse(err, fallback)

	level := slog.LevelInfo
	if status >= http.StatusInternalServerError {
		level = slog.LevelError
	}

	s.logger.LogAttrs(c.Request.Context(), level, op+" failed",
		slog.Int("status", status),
		slog.String("error", err.Error()),
	)

	c.JSON(status, gin.H{"error": msg})
}

// loadOrder handles GET /order/:number.
func (s *Server) loadOrder(c *gin.Context) {
	order, err := s.opts.Session.LoadOrder(c.Request.Context(), c.Param("number"))
	if err != nil {
		s.fail(c, "load order", err, msgLoadFailed)
		return
	}

	c.JSON(http.StatusOK, order)
}

// scan handles POST /scan {code}.
func (s *Server) scan(c *gin.Context) {
	var req scanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": msgBadRequest})
		return
	}

	product, err := s.opts.Session.Scan(req.Code)
	if err != nil {
		s.fail(c, "scan", err, msgBadRequest)
		return
	}

	c.JSON(http.StatusOK, product)
}

// finalize handles POST /finalize {confirmed}. An empty body means
// confirmed=false.
func (s *Server) finalize(c *gin.Context) {
	var req finalizeRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": msgBadRequest})
			return
		}
	}

	res, err := s.opts.Session.Finalize(c.Request.Context(), req.Confirmed)
	if err != nil {
		s.fail(c, "finalize", err, msgFinalizeFailed)
		return
	}

	faltantes := make([]string, 0, len(res.Shortfalls))
	for _, f := range res.Shortfalls {
		faltantes = append(faltantes, f.String())
	}

	c.JSON(http.StatusOK, finalizeResponse{OK: res.Completed, Faltantes: faltantes})
}

// session handles GET /session.
func (s *Server) session(c *gin.Context) {
	c.JSON(http.StatusOK, s.opts.Session.Snapshot())
}

// history handles GET /history?limit=N.
func (s *Server) history(c *gin.Context) {
	if s.opts.History == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": msgHistoryDisabled})
		return
	}

	limit := ledger.DefaultLimit

	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": msgBadRequest})
			return
		}

		limit = min(n, maxHistoryLimit)
	}

	picks, err := s.opts.History.Recent(c.Request.Context(), limit)
	if err != nil {
		s.logger.Error("listing history", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": msgHistoryFailed})

		return
	}

	c.JSON(http.StatusOK, gin.H{"picks": picks})
}

// health handles GET /health. It answers 503 while the ERP authorization
// is unusable so a supervisor can alert on it.
func (s *Server) health(c *gin.Context) {
	resp := gin.H{"state": s.opts.Session.State()}
	status := http.StatusOK

	if s.opts.Tokens != nil {
		ts := s.opts.Tokens.Status()
		resp["token"] = ts

		if !ts.Configured || ts.LockedOut {
			status = http.StatusServiceUnavailable
		}
	}

	resp["ok"] = status == http.StatusOK

	c.JSON(status, resp)
}

// stream handles GET /ws on the raw ResponseWriter. The first message is
// the current snapshot; later messages are session events.
func (s *Server) stream(w http.ResponseWriter, r *http.Request) {
	s.logger.Debug("websocket stream opened", slog.String("remote", r.RemoteAddr))

	err := s.opts.Hub.Serve(w, r, func() any {
		return snapshotMessage{Type: "snapshot", Snapshot: s.opts.Session.Snapshot()}
	})
	if err != nil {
		s.logger.Debug("websocket stream ended", slog.String("error", err.Error()))
	}
}

type snapshotMessage struct {
	Type     string           `json:"type"`
	Snapshot picking.Snapshot `json:"snapshot"`
}
