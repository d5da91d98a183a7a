package sheets

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"courtbook/internal/models"

	"google.golang.org/api/option"
	sheetsapi "google.golang.org/api/sheets/v4"
)

func setupMockServer(ctx context.Context) (*http.ServeMux, *httptest.Server, *Service) {
	mux := http.NewServeMux()
	server := httptest.NewServer(mux)
	srv, _ := sheetsapi.NewService(ctx, option.WithEndpoint(server.URL), option.WithoutAuthentication())
	s := NewWithService(srv, "schedule_tid")
	return mux, server, s
}

func testBooking(id string) *models.Booking {
	return &models.Booking{
		ID:        id,
		CourtID:   "court-a",
		Date:      "2024-06-01",
		StartTime: "14:00",
		EndTime:   "16:00",
		Status:    models.StatusConfirmed,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
}

func TestService_TestConnection(t *testing.T) {
	ctx := context.Background()
	mux, server, s := setupMockServer(ctx)
	defer server.Close()
	mux.HandleFunc("/v4/spreadsheets/schedule_tid/values/Bookings!A1", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(sheetsapi.ValueRange{Values: [][]interface{}{{"test"}}})
	})
	if err := s.TestConnection(ctx); err != nil {
		t.Errorf("TestConnection failed: %v", err)
	}
}

func TestService_WarmUpCache(t *testing.T) {
	ctx := context.Background()
	mux, server, s := setupMockServer(ctx)
	defer server.Close()
	mux.HandleFunc("/v4/spreadsheets/schedule_tid/values/Bookings!A:A", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(sheetsapi.ValueRange{
			Values: [][]interface{}{{"ID"}, {"bk-123"}, {"bk-456"}},
		})
	})
	if err := s.WarmUpCache(ctx); err != nil {
		t.Errorf("WarmUpCache failed: %v", err)
	}
	if row, ok := s.cachedRow("bk-123"); !ok || row != 2 {
		t.Errorf("Expected row 2 for bk-123, got %d", row)
	}
}

func TestService_UpsertBooking_Update(t *testing.T) {
	ctx := context.Background()
	mux, server, s := setupMockServer(ctx)
	defer server.Close()
	s.setCachedRow("bk-123", 2)
	mux.HandleFunc("/v4/spreadsheets/schedule_tid/values/Bookings!A2:K2", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(sheetsapi.UpdateValuesResponse{})
	})
	if err := s.UpsertBooking(ctx, testBooking("bk-123")); err != nil {
		t.Errorf("UpsertBooking failed: %v", err)
	}
}

func TestService_UpsertBooking_AppendWhenMissing(t *testing.T) {
	ctx := context.Background()
	mux, server, s := setupMockServer(ctx)
	defer server.Close()
	mux.HandleFunc("/v4/spreadsheets/schedule_tid/values/Bookings!A:A", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(sheetsapi.ValueRange{Values: [][]interface{}{{"ID"}}})
	})
	appended := false
	mux.HandleFunc("/v4/spreadsheets/schedule_tid/values/Bookings!A:A:append", func(w http.ResponseWriter, r *http.Request) {
		appended = true
		_ = json.NewEncoder(w).Encode(sheetsapi.AppendValuesResponse{})
	})
	if err := s.UpsertBooking(ctx, testBooking("bk-new")); err != nil {
		t.Errorf("UpsertBooking failed: %v", err)
	}
	if !appended {
		t.Error("Expected append call for unknown booking")
	}
}

func TestService_UpsertBooking_NilBooking(t *testing.T) {
	ctx := context.Background()
	_, server, s := setupMockServer(ctx)
	defer server.Close()
	if err := s.UpsertBooking(ctx, nil); err == nil {
		t.Error("Expected error for nil booking")
	}
}
