package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestWriteJSON(t *testing.T) {
	t.Run("sets content type and status code", func(t *testing.T) {
		w := httptest.NewRecorder()
		data := map[string]string{"status": "ok"}

		WriteJSON(w, http.StatusOK, data)

		if got := w.Header().Get("Content-Type"); got != "application/json" {
			t.Errorf("Content-Type = %q, want %q", got, "application/json")
		}
		if w.Code != http.StatusOK {
			t.Errorf("status code = %d, want %d", w.Code, http.StatusOK)
		}

		var result map[string]string
		if err := json.NewDecoder(w.Body).Decode(&result); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if result["status"] != "ok" {
			t.Errorf("body status = %q, want %q", result["status"], "ok")
		}
	})

	t.Run("writes 201 Created", func(t *testing.T) {
		w := httptest.NewRecorder()
		WriteJSON(w, http.StatusCreated, map[string]int{"id": 42})

		if w.Code != http.StatusCreated {
			t.Errorf("status code = %d, want %d", w.Code, http.StatusCreated)
		}
	})

	t.Run("encodes struct with snake_case tags", func(t *testing.T) {
		type resp struct {
			AccountID   string  `json:"account_id"`
			CashBalance float64 `json:"cash_balance"`
		}
		w := httptest.NewRecorder()
		WriteJSON(w, http.StatusOK, resp{AccountID: "alice", CashBalance: 100.50})

		var raw map[string]any
		if err := json.NewDecoder(w.Body).Decode(&raw); err != nil {
			t.Fatalf("failed to decode: %v", err)
		}
		if raw["account_id"] != "alice" {
			t.Errorf("account_id = %v, want %q", raw["account_id"], "alice")
		}
		if raw["cash_balance"] != 100.50 {
			t.Errorf("cash_balance = %v, want 100.50", raw["cash_balance"])
		}
	})
}

func TestWriteError(t *testing.T) {
	w := httptest.NewRecorder()
	WriteError(w, http.StatusNotFound, "order_not_found", "order not found")

	if w.Code != http.StatusNotFound {
		t.Errorf("status code = %d, want %d", w.Code, http.StatusNotFound)
	}

	var resp errorResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if resp.Error != "order_not_found" {
		t.Errorf("error = %q, want %q", resp.Error, "order_not_found")
	}
	if resp.Message != "order not found" {
		t.Errorf("message = %q, want %q", resp.Message, "order not found")
	}
}

func TestParseJSON(t *testing.T) {
	type payload struct {
		Name string `json:"name"`
	}

	t.Run("accepts valid JSON with correct content type", func(t *testing.T) {
		r := httptest.NewRequest("POST", "/", strings.NewReader(`{"name":"x"}`))
		r.Header.Set("Content-Type", "application/json")

		var p payload
		if err := ParseJSON(r, &p); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if p.Name != "x" {
			t.Errorf("name = %q, want %q", p.Name, "x")
		}
	})

	t.Run("accepts content type with charset suffix", func(t *testing.T) {
		r := httptest.NewRequest("POST", "/", strings.NewReader(`{"name":"x"}`))
		r.Header.Set("Content-Type", "application/json; charset=utf-8")

		var p payload
		if err := ParseJSON(r, &p); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	t.Run("rejects missing content type", func(t *testing.T) {
		r := httptest.NewRequest("POST", "/", strings.NewReader(`{"name":"x"}`))

		var p payload
		if err := ParseJSON(r, &p); err == nil {
			t.Fatal("expected error for missing content type")
		}
	})

	t.Run("rejects malformed JSON", func(t *testing.T) {
		r := httptest.NewRequest("POST", "/", strings.NewReader(`{"name": `))
		r.Header.Set("Content-Type", "application/json")

		var p payload
		if err := ParseJSON(r, &p); err == nil {
			t.Fatal("expected error for malformed JSON")
		}
	})

	t.Run("rejects unknown fields", func(t *testing.T) {
		r := httptest.NewRequest("POST", "/", strings.NewReader(`{"name":"x","extra":1}`))
		r.Header.Set("Content-Type", "application/json")

		var p payload
		if err := ParseJSON(r, &p); err == nil {
			t.Fatal("expected error for unknown field")
		}
	})
}

func TestFormatTime(t *testing.T) {
	ts := time.Date(2025, 6, 2, 14, 30, 5, 0, time.FixedZone("EST", -5*3600))
	if got := formatTime(ts); got != "2025-06-02T19:30:05Z" {
		t.Errorf("formatTime = %q, want UTC wire format", got)
	}

	if formatTimePtr(nil) != nil {
		t.Error("formatTimePtr(nil) should be nil")
	}
	utc := ts.UTC()
	if got := formatTimePtr(&utc); got == nil || *got != "2025-06-02T19:30:05Z" {
		t.Errorf("formatTimePtr = %v", got)
	}
}

func TestQueryInt(t *testing.T) {
	r := httptest.NewRequest("GET", "/?limit=25", nil)
	if n, err := queryInt(r, "limit", 10); err != nil || n != 25 {
		t.Errorf("queryInt = %d, %v, want 25", n, err)
	}
	if n, err := queryInt(r, "page", 1); err != nil || n != 1 {
		t.Errorf("default = %d, %v, want 1", n, err)
	}

	r = httptest.NewRequest("GET", "/?limit=abc", nil)
	if _, err := queryInt(r, "limit", 10); err == nil {
		t.Error("expected error for non-integer value")
	}
}
