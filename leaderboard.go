package main

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/Seednode/retropong/persist"
	"github.com/julienschmidt/httprouter"
	"go.uber.org/zap"
)

type leaderboardResponse struct {
	Scores []persist.Score `json:"scores"`
}

func serveLeaderboard(cfg *Config, log *zap.Logger, scores persist.Scores) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		startTime := time.Now()

		securityHeaders(cfg, w)
		w.Header().Set("Cache-Control", "no-cache")

		limit := persist.LeaderboardSize
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 1 {
				_ = writeJSONError(w, http.StatusBadRequest, "limit must be a positive integer")
				return
			}
			limit = n
		}

		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()

		top, err := scores.TopScores(ctx, limit)
		if err != nil {
			log.Error("SERVE: leaderboard query failed", zap.Error(err))
			_ = writeJSONError(w, http.StatusInternalServerError, "leaderboard unavailable")
			return
		}

		_ = writeJSON(w, http.StatusOK, leaderboardResponse{Scores: top})

		log.Debug("SERVE: leaderboard",
			zap.Int("entries", len(top)),
			zap.String("client", realIP(r)),
			zap.Duration("elapsed", time.Since(startTime).Round(time.Microsecond)),
		)
	}
}

func registerLeaderboard(cfg *Config, log *zap.Logger, scores persist.Scores, mux *httprouter.Router) {
	mux.GET(cfg.prefix+"/api/leaderboard", serveLeaderboard(cfg, log, scores))
}
