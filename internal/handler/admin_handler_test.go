package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hitoshi/leadbox/internal/model"
	"github.com/hitoshi/leadbox/internal/subscriber"
)

type mockAdminService struct {
	listFn  func(ctx context.Context, source string) ([]model.Subscriber, error)
	statsFn func(ctx context.Context) (*model.Stats, error)
}

func (m *mockAdminService) List(ctx context.Context, source string) ([]model.Subscriber, error) {
	return m.listFn(ctx, source)
}

func (m *mockAdminService) Stats(ctx context.Context) (*model.Stats, error) {
	return m.statsFn(ctx)
}

func TestAdminHandler_ListSubscribers_PassesSource(t *testing.T) {
	var gotSource string
	h := NewAdminHandler(&mockAdminService{
		listFn: func(ctx context.Context, source string) ([]model.Subscriber, error) {
			gotSource = source
			return []model.Subscriber{{Email: "a@example.com", Name: "A", Source: source}}, nil
		},
	})

	w := httptest.NewRecorder()
	h.ListSubscribers(w, httptest.NewRequest(http.MethodGet, "/api/subscribers?source=blog", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if gotSource != "blog" {
		t.Errorf("source = %q, want blog", gotSource)
	}

	var subs []model.Subscriber
	if err := json.NewDecoder(w.Body).Decode(&subs); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(subs) != 1 || subs[0].Email != "a@example.com" {
		t.Errorf("subs = %+v", subs)
	}
}

// 0件の場合はnullではなく空配列を返す
func TestAdminHandler_ListSubscribers_EmptyArray(t *testing.T) {
	h := NewAdminHandler(&mockAdminService{
		listFn: func(ctx context.Context, source string) ([]model.Subscriber, error) { return nil, nil },
	})

	w := httptest.NewRecorder()
	h.ListSubscribers(w, httptest.NewRequest(http.MethodGet, "/api/subscribers", nil))

	if got := w.Body.String(); got != "[]\n" {
		t.Errorf("body = %q, want []", got)
	}
}

func TestAdminHandler_Stats(t *testing.T) {
	h := NewAdminHandler(&mockAdminService{
		statsFn: func(ctx context.Context) (*model.Stats, error) {
			return &model.Stats{
				Total:      3,
				BySource:   map[string]int{"a": 2, "b": 1},
				ConvertKit: model.ConvertKitCounts{Success: 2, Error: 1},
			}, nil
		},
	})

	w := httptest.NewRecorder()
	h.Stats(w, httptest.NewRequest(http.MethodGet, "/api/subscribers/stats", nil))

	want := `{"total":3,"bySource":{"a":2,"b":1},"convertKit":{"success":2,"error":1,"pending":0}}` + "\n"
	if got := w.Body.String(); got != want {
		t.Errorf("body = %s, want %s", got, want)
	}
}

func TestAdminHandler_Errors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode string
	}{
		{"storage unavailable", subscriber.ErrStorageUnavailable, model.ErrCodeStorageUnavailable},
		{"backend failure", errors.New("redis: connection refused"), model.ErrCodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewAdminHandler(&mockAdminService{
				statsFn: func(ctx context.Context) (*model.Stats, error) { return nil, tt.err },
			})

			w := httptest.NewRecorder()
			h.Stats(w, httptest.NewRequest(http.MethodGet, "/api/subscribers/stats", nil))

			if w.Code != http.StatusInternalServerError {
				t.Errorf("status = %d, want 500", w.Code)
			}
			if body := decodeError(t, w); body.Code != tt.wantCode {
				t.Errorf("code = %q, want %q", body.Code, tt.wantCode)
			}
		})
	}
}
