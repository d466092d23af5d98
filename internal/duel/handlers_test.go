package duel

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func setupTestRouter() (*gin.Engine, *fakeLedger) {
	gin.SetMode(gin.TestMode)

	ledger := newFakeLedger()
	svc := NewService(NewMemoryStore(), ledger, slog.New(slog.NewTextHandler(io.Discard, nil)))
	handler := NewHandler(svc)

	r := gin.New()
	v1 := r.Group("/v1")
	handler.RegisterRoutes(v1)

	return r, ledger
}

func postJSON(router *gin.Engine, path string, payload any) *httptest.ResponseRecorder {
	body, _ := json.Marshal(payload)
	req := httptest.NewRequest("POST", path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestHandler_DuelLifecycle(t *testing.T) {
	router, ledger := setupTestRouter()
	ledger.fund(playerA, 100)
	ledger.fund(playerB, 100)

	// Create
	w := postJSON(router, "/v1/duels", CreateRequest{
		Player1: playerA, Stake: "50", TokenMint: mint,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", w.Code, w.Body.String())
	}

	var createResp struct {
		Duel Duel `json:"duel"`
	}
	json.Unmarshal(w.Body.Bytes(), &createResp)
	if createResp.Duel.Status != StatusOpen {
		t.Errorf("Expected OPEN, got %s", createResp.Duel.Status)
	}
	id := createResp.Duel.ID

	// Get
	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/v1/duels/"+id, nil))
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}

	// Join
	w = postJSON(router, "/v1/duels/"+id+"/join", JoinRequest{Player2: playerB})
	if w.Code != http.StatusOK {
		t.Fatalf("Join: expected 200, got %d: %s", w.Code, w.Body.String())
	}

	// Both submit the same winner
	w = postJSON(router, "/v1/duels/"+id+"/result", ResultRequest{Player: playerA, ClaimedWinner: playerB})
	if w.Code != http.StatusOK {
		t.Fatalf("Submit 1: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	w = postJSON(router, "/v1/duels/"+id+"/result", ResultRequest{Player: playerB, ClaimedWinner: playerB})
	if w.Code != http.StatusOK {
		t.Fatalf("Submit 2: expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var submitResp struct {
		Duel     Duel `json:"duel"`
		Resolved bool `json:"resolved"`
	}
	json.Unmarshal(w.Body.Bytes(), &submitResp)
	if !submitResp.Resolved {
		t.Error("Expected resolved=true")
	}
	if submitResp.Duel.Status != StatusSettled || submitResp.Duel.Winner != playerB {
		t.Errorf("Expected SETTLED winner=%s, got %s winner=%s",
			playerB, submitResp.Duel.Status, submitResp.Duel.Winner)
	}
}

func TestHandler_ErrorMapping(t *testing.T) {
	router, ledger := setupTestRouter()
	ledger.fund(playerA, 100)
	ledger.fund(playerB, 100)

	w := postJSON(router, "/v1/duels", CreateRequest{Player1: playerA, Stake: "50", TokenMint: mint})
	var createResp struct {
		Duel Duel `json:"duel"`
	}
	json.Unmarshal(w.Body.Bytes(), &createResp)
	id := createResp.Duel.ID

	tests := []struct {
		name    string
		path    string
		payload any
		status  int
	}{
		{"get missing duel", "", nil, http.StatusNotFound},
		{"join self", "/v1/duels/" + id + "/join", JoinRequest{Player2: playerA}, http.StatusBadRequest},
		{"submit on open", "/v1/duels/" + id + "/result", ResultRequest{Player: playerA, ClaimedWinner: playerA}, http.StatusConflict},
		{"cancel by stranger", "/v1/duels/" + id + "/cancel", CancelRequest{Requester: playerB}, http.StatusForbidden},
		{"join missing duel", "/v1/duels/duel_missing/join", JoinRequest{Player2: playerB}, http.StatusNotFound},
		{"bad create", "/v1/duels", CreateRequest{Player1: "bogus", Stake: "50", TokenMint: mint}, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var w *httptest.ResponseRecorder
			if tt.payload == nil {
				w = httptest.NewRecorder()
				router.ServeHTTP(w, httptest.NewRequest("GET", "/v1/duels/duel_missing", nil))
			} else {
				w = postJSON(router, tt.path, tt.payload)
			}
			if w.Code != tt.status {
				t.Errorf("Expected %d, got %d: %s", tt.status, w.Code, w.Body.String())
			}
		})
	}
}

func TestHandler_InsufficientFunds(t *testing.T) {
	router, _ := setupTestRouter()

	w := postJSON(router, "/v1/duels", CreateRequest{Player1: playerA, Stake: "50", TokenMint: mint})
	if w.Code != http.StatusPaymentRequired {
		t.Errorf("Expected 402, got %d: %s", w.Code, w.Body.String())
	}
}

func TestHandler_ListDuels(t *testing.T) {
	router, ledger := setupTestRouter()

	for i := 0; i < 3; i++ {
		player := fmt.Sprintf("P%dayerWa11et11111111111111111111111111111111", i+1)
		ledger.fund(player, 100)
		w := postJSON(router, "/v1/duels", CreateRequest{Player1: player, Stake: "50", TokenMint: mint})
		if w.Code != http.StatusCreated {
			t.Fatalf("Create %d: got %d: %s", i, w.Code, w.Body.String())
		}
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/v1/duels?status=OPEN", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}

	var listResp struct {
		Duels []Duel `json:"duels"`
	}
	json.Unmarshal(w.Body.Bytes(), &listResp)
	if len(listResp.Duels) != 3 {
		t.Errorf("Expected 3 OPEN duels, got %d", len(listResp.Duels))
	}

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/v1/duels?status=BOGUS", nil))
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for bad status, got %d", w.Code)
	}
}

func TestHandler_Cleanup(t *testing.T) {
	router, ledger := setupTestRouter()
	ledger.fund(playerA, 100)

	w := postJSON(router, "/v1/duels", CreateRequest{
		Player1: playerA, Stake: "50", TokenMint: mint, ExpiresIn: "1ms",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("Create: got %d", w.Code)
	}

	time.Sleep(5 * time.Millisecond)

	w = postJSON(router, "/v1/duels/cleanup", gin.H{})
	if w.Code != http.StatusOK {
		t.Fatalf("Cleanup: expected 200, got %d", w.Code)
	}

	var resp struct {
		Cancelled int `json:"cancelled"`
	}
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Cancelled != 1 {
		t.Errorf("Expected 1 cancelled, got %d", resp.Cancelled)
	}
}
