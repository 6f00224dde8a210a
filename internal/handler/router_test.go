package handler_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/zhouzirui/sangha-bot/internal/handler"
	"github.com/zhouzirui/sangha-bot/internal/model/schedule"
	"github.com/zhouzirui/sangha-bot/internal/service/scheduler"
	promptstore "github.com/zhouzirui/sangha-bot/internal/store/prompt"
)

func newTestRouter(t *testing.T) (http.Handler, *promptstore.SQLiteStore, *scheduler.Engine) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	store, err := promptstore.NewSQLiteStore(ctx, filepath.Join(t.TempDir(), "prompts.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore err: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	engine := scheduler.NewEngine(ctx, store, scheduler.Options{TickInterval: time.Hour})
	t.Cleanup(engine.Stop)

	return handler.NewRouter(store, engine), store, engine
}

func TestHealthz(t *testing.T) {
	router, _, _ := newTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
}

func TestStatusReportsCountAndSchedule(t *testing.T) {
	router, store, engine := newTestRouter(t)
	ctx := context.Background()

	if err := store.Add(ctx, "ref", "src", "a prompt"); err != nil {
		t.Fatalf("Add err: %v", err)
	}

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rec.Code)
	}

	var payload struct {
		PromptCount int                `json:"promptCount"`
		Schedule    *schedule.Schedule `json:"schedule"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&payload); err != nil {
		t.Fatalf("decode err: %v", err)
	}
	if payload.PromptCount != 1 {
		t.Fatalf("unexpected prompt count: %d", payload.PromptCount)
	}
	if payload.Schedule != nil {
		t.Fatalf("expected null schedule, got %+v", payload.Schedule)
	}

	engine.Set(schedule.Schedule{
		NextDue: time.Date(2025, time.June, 1, 8, 0, 0, 0, time.UTC),
		Freq:    schedule.Frequency{Days: 1},
	}, nil)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))
	if err := json.NewDecoder(rec.Body).Decode(&payload); err != nil {
		t.Fatalf("decode err: %v", err)
	}
	if payload.Schedule == nil {
		t.Fatal("expected a schedule in the status payload")
	}
	if payload.Schedule.Freq.Days != 1 {
		t.Fatalf("unexpected schedule frequency: %+v", payload.Schedule.Freq)
	}
}

func TestPromptsEndpointValidatesLimit(t *testing.T) {
	router, store, _ := newTestRouter(t)
	ctx := context.Background()

	for _, text := range []string{"one", "two", "three"} {
		if err := store.Add(ctx, "ref", "src", text); err != nil {
			t.Fatalf("Add err: %v", err)
		}
	}

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/prompts?limit=2", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rec.Code)
	}

	var payload struct {
		Prompts []struct {
			Prompt string `json:"prompt"`
		} `json:"prompts"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&payload); err != nil {
		t.Fatalf("decode err: %v", err)
	}
	if len(payload.Prompts) != 2 {
		t.Fatalf("expected 2 prompts, got %d", len(payload.Prompts))
	}
	if payload.Prompts[0].Prompt != "three" {
		t.Fatalf("expected most recent first, got %q", payload.Prompts[0].Prompt)
	}

	for _, bad := range []string{"0", "21", "abc"} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/prompts?limit="+bad, nil))
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("limit=%s: expected 400, got %d", bad, rec.Code)
		}
	}
}
