package api

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sugawarayuuta/sonnet"
	"go.uber.org/zap"

	"liquiditySim/internal/simulate"
)

type healthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
	Version string `json:"version"`
	Block   uint64 `json:"block"`
}

type simulateResponse struct {
	Success bool `json:"success"`
	simulate.Result
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, healthResponse{
		Status:  "UP",
		Service: serviceName,
		Version: s.cfg.Version,
		Block:   s.cache.CurrentBlock(),
	})
}

func (s *Server) handleSimulate(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req simulate.Request
	if err := decodeBody(w, r, &req); err != nil {
		s.observe("simulate", start, err)
		s.writeError(w, err)
		return
	}

	res, err := s.sim.Simulate(r.Context(), req)
	s.observe("simulate", start, err)
	if err != nil {
		s.logger.Debug("simulate rejected",
			zap.String("sell_token", req.SellToken),
			zap.Strings("pools", req.Pools),
			zap.String("amount", req.Amount),
			zap.Error(err),
		)
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, simulateResponse{Success: true, Result: res})
}

func (s *Server) handleLimits(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req simulate.LimitsRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.observe("limits", start, err)
		s.writeError(w, err)
		return
	}

	res, err := s.sim.Limits(req)
	s.observe("limits", start, err)
	if err != nil {
		s.logger.Debug("limits rejected", zap.String("pool", req.PoolAddress), zap.Error(err))
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleSnapshot(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.cache.FullSnapshot())
}

func (s *Server) observe(endpoint string, start time.Time, err error) {
	if s.metrics == nil {
		return
	}
	s.metrics.SimulateDuration.WithLabelValues(endpoint, outcome(err)).Observe(time.Since(start).Seconds())
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("%w: read body: %v", simulate.ErrInvalidInput, err)
	}
	if err := sonnet.Unmarshal(body, dst); err != nil {
		return fmt.Errorf("%w: decode body: %v", simulate.ErrInvalidInput, err)
	}
	return nil
}
