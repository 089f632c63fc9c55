package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/WessleyAI/festa/engine/domain"
)

// maxBodyBytes bounds a chat request body.
const maxBodyBytes = 64 << 10

// unavailableMessage is shown when the query cannot be embedded or the
// catalog cannot be read.
const unavailableMessage = "지금은 추천 서비스를 이용할 수 없어요. 잠시 후 다시 시도해 주세요."

type recommender interface {
	Recommend(ctx context.Context, req domain.ChatRequest) (*domain.ChatResult, error)
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleChat runs the pipeline with a deadline of timeout. Zero means none.
func handleChat(svc recommender, timeout time.Duration, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req domain.ChatRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
			return
		}
		req, err := domain.ValidateChatRequest(req)
		if err != nil {
			var verr *domain.ValidationError
			msg := domain.ErrInvalidRequest.Error()
			if errors.As(err, &verr) {
				msg = verr.Wrapped.Error()
			}
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: msg})
			return
		}

		ctx := r.Context()
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}
		res, err := svc.Recommend(ctx, req)
		if err != nil {
			logger.Error("chat failed", "user_id", req.UserID, "err", err)
			writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: unavailableMessage})
			return
		}
		if res.RelatedEventIDs == nil {
			res.RelatedEventIDs = []int64{}
		}
		writeJSON(w, http.StatusOK, res)
	}
}
