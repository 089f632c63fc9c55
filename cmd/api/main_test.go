package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/WessleyAI/festa/engine/domain"
	"github.com/WessleyAI/festa/pkg/config"
	"github.com/WessleyAI/festa/pkg/metrics"
	"github.com/WessleyAI/festa/pkg/mid"
)

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

type mockRecommender struct {
	res         *domain.ChatResult
	err         error
	gotReq      domain.ChatRequest
	gotReqID    string
	gotDeadline time.Time
	calls       int
	// block waits for the request context to end before returning its error.
	block bool
}

func (m *mockRecommender) Recommend(ctx context.Context, req domain.ChatRequest) (*domain.ChatResult, error) {
	m.calls++
	m.gotReq = req
	m.gotReqID = mid.RequestIDFrom(ctx)
	m.gotDeadline, _ = ctx.Deadline()
	if m.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return m.res, m.err
}

func postChat(t *testing.T, h http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var resp errorResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return resp.Error
}

func TestHandleHealth(t *testing.T) {
	w := httptest.NewRecorder()
	handleHealth(w, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp map[string]string
	json.NewDecoder(w.Body).Decode(&resp)
	if resp["status"] != "ok" {
		t.Fatalf("unexpected body: %v", resp)
	}
}

func TestHandleChat_InvalidJSON(t *testing.T) {
	svc := &mockRecommender{}
	w := postChat(t, handleChat(svc, 0, testLogger), "{not json")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if got := decodeError(t, w); got != "invalid request body" {
		t.Fatalf("unexpected error: %q", got)
	}
	if svc.calls != 0 {
		t.Fatal("pipeline must not run for a bad body")
	}
}

func TestHandleChat_Validation(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"missing message", `{"user_id":"u1","message":"   "}`, domain.ErrMessageRequired.Error()},
		{"missing user", `{"message":"hi"}`, domain.ErrUserIDRequired.Error()},
		{"too long", fmt.Sprintf(`{"user_id":"u1","message":%q}`, strings.Repeat("가", domain.MaxMessageRunes+1)), domain.ErrMessageTooLong.Error()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockRecommender{}
			w := postChat(t, handleChat(svc, 0, testLogger), tt.body)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", w.Code)
			}
			if got := decodeError(t, w); got != tt.want {
				t.Fatalf("error = %q, want %q", got, tt.want)
			}
			if svc.calls != 0 {
				t.Fatal("pipeline must not run for an invalid request")
			}
		})
	}
}

func TestHandleChat_BodyTooLarge(t *testing.T) {
	body := `{"user_id":"u1","message":"` + strings.Repeat("a", maxBodyBytes) + `"}`
	w := postChat(t, handleChat(&mockRecommender{}, 0, testLogger), body)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestHandleChat_Success(t *testing.T) {
	svc := &mockRecommender{res: &domain.ChatResult{Reply: "불꽃축제를 추천해요", RelatedEventIDs: []int64{7, 3}}}
	w := postChat(t, handleChat(svc, 0, testLogger), `{"user_id":" u1 ","message":" 주말 축제 추천해줘 "}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if svc.gotReq.UserID != "u1" || svc.gotReq.Message != "주말 축제 추천해줘" {
		t.Fatalf("request not normalized: %+v", svc.gotReq)
	}
	var res domain.ChatResult
	if err := json.NewDecoder(w.Body).Decode(&res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.Reply != "불꽃축제를 추천해요" || len(res.RelatedEventIDs) != 2 || res.RelatedEventIDs[0] != 7 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
		t.Fatalf("content type = %q", ct)
	}
}

func TestHandleChat_EmptyIDsEncodeAsArray(t *testing.T) {
	svc := &mockRecommender{res: &domain.ChatResult{Reply: "없어요"}}
	w := postChat(t, handleChat(svc, 0, testLogger), `{"user_id":"u1","message":"hi"}`)
	if !bytes.Contains(w.Body.Bytes(), []byte(`"related_event_ids":[]`)) {
		t.Fatalf("expected empty array, got %s", w.Body.String())
	}
}

func TestHandleChat_Unavailable(t *testing.T) {
	cause := fmt.Errorf("rag: embed query: %w: %w", domain.ErrEmbeddingUnavailable, errors.New("dial tcp 10.0.0.1:443: secret-host"))
	svc := &mockRecommender{err: cause}
	w := postChat(t, handleChat(svc, 0, testLogger), `{"user_id":"u1","message":"hi"}`)
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
	if strings.Contains(w.Body.String(), "secret-host") {
		t.Fatalf("upstream error leaked: %s", w.Body.String())
	}
	if got := decodeError(t, w); got != unavailableMessage {
		t.Fatalf("unexpected message: %q", got)
	}
}

func TestHandleChat_DeadlineEndsInServiceUnavailable(t *testing.T) {
	svc := &mockRecommender{block: true}
	start := time.Now()
	w := postChat(t, handleChat(svc, 20*time.Millisecond, testLogger), `{"user_id":"u1","message":"hi"}`)
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
	if got := decodeError(t, w); got != unavailableMessage {
		t.Fatalf("unexpected message: %q", got)
	}
	if time.Since(start) > 5*time.Second {
		t.Fatal("handler did not honour its deadline")
	}
}

func TestNewHandler_DeadlineBelowWriteTimeout(t *testing.T) {
	sc := config.Default().Server
	svc := &mockRecommender{res: &domain.ChatResult{Reply: "ok", RelatedEventIDs: []int64{}}}
	h := newHandler(svc, metrics.New().Handler(), sc, testLogger)

	before := time.Now()
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(`{"user_id":"u1","message":"hi"}`)))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if svc.gotDeadline.IsZero() {
		t.Fatal("chat request has no deadline")
	}
	if svc.gotDeadline.Sub(before) >= sc.WriteTimeout {
		t.Fatalf("deadline %v not below write timeout %v", svc.gotDeadline.Sub(before), sc.WriteTimeout)
	}
}

func TestNewHandler_Routes(t *testing.T) {
	reg := metrics.New()
	svc := &mockRecommender{res: &domain.ChatResult{Reply: "ok", RelatedEventIDs: []int64{}}}
	h := newHandler(svc, reg.Handler(), config.Default().Server, testLogger)

	t.Run("health", func(t *testing.T) {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/health", nil))
		if w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", w.Code)
		}
		if w.Header().Get(mid.RequestIDHeader) == "" {
			t.Fatal("missing request id header")
		}
	})

	t.Run("chat carries request id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(`{"user_id":"u1","message":"hi"}`))
		req.Header.Set(mid.RequestIDHeader, "req-123")
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", w.Code)
		}
		if svc.gotReqID != "req-123" {
			t.Fatalf("request id = %q", svc.gotReqID)
		}
	})

	t.Run("chat rejects GET", func(t *testing.T) {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/chat", nil))
		if w.Code != http.StatusMethodNotAllowed {
			t.Fatalf("expected 405, got %d", w.Code)
		}
	})

	t.Run("metrics", func(t *testing.T) {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
		if w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", w.Code)
		}
		if !strings.Contains(w.Body.String(), "go_goroutines") {
			t.Fatal("expected runtime collectors in /metrics output")
		}
	})
}

func TestOpenCatalog_UnknownBackend(t *testing.T) {
	cfg := config.Default()
	cfg.Catalog.Backend = "sqlite"
	if _, _, err := openCatalog(context.Background(), cfg, testLogger); err == nil {
		t.Fatal("expected error for unknown backend")
	}
}

func TestNewSolarClients_RequiresKey(t *testing.T) {
	cfg := config.Default()
	if _, _, err := newSolarClients(cfg.Solar, nil, testLogger); err == nil {
		t.Fatal("expected error without api key")
	}
	cfg.Solar.APIKey = "k"
	emb, chat, err := newSolarClients(cfg.Solar, nil, testLogger)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if emb.Model("query") != cfg.Solar.QueryModel || chat.Model() != cfg.Solar.ChatModel {
		t.Fatal("models not wired from config")
	}
}
