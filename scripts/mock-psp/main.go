package main

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"
)

// Minimal stand-in for the payment processor used in local development.
// It honors Idempotency-Key headers the same way the real processor does:
// a repeated key replays the recorded response instead of creating a new
// hold, charge, transfer or refund.

type apiResponse struct {
	Status  bool           `json:"status"`
	Message string         `json:"message"`
	Data    map[string]any `json:"data"`
}

type store struct {
	mu         sync.Mutex
	idempotent map[string][]byte
	holds      map[string]int64      // hold_ref -> amount
	captured   map[string]string     // hold_ref -> charge_ref
	records    map[string]int64      // transaction_id -> captured amount
	refunds    map[string]int64      // transaction_id -> refunded amount
}

func newStore() *store {
	return &store{
		idempotent: make(map[string][]byte),
		holds:      make(map[string]int64),
		captured:   make(map[string]string),
		records:    make(map[string]int64),
		refunds:    make(map[string]int64),
	}
}

// replay returns the recorded response for a repeated idempotency key.
func (s *store) replay(w http.ResponseWriter, r *http.Request) bool {
	key := r.Header.Get("Idempotency-Key")
	if key == "" {
		return false
	}
	s.mu.Lock()
	body, ok := s.idempotent[key]
	s.mu.Unlock()
	if !ok {
		return false
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(body)
	log.Printf("Replayed idempotent response for key %s", key)
	return true
}

func (s *store) respond(w http.ResponseWriter, r *http.Request, resp apiResponse) {
	body, _ := json.Marshal(resp)
	if key := r.Header.Get("Idempotency-Key"); key != "" {
		s.mu.Lock()
		s.idempotent[key] = body
		s.mu.Unlock()
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(body)
}

func main() {
	port := ":8081"
	s := newStore()

	http.HandleFunc("/authorizations", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if s.replay(w, r) {
			return
		}

		var req struct {
			Amount   int64             `json:"amount"`
			Metadata map[string]string `json:"metadata"`
		}
		json.NewDecoder(r.Body).Decode(&req)

		holdRef := fmt.Sprintf("hold_%d", time.Now().UnixNano())
		s.mu.Lock()
		s.holds[holdRef] = req.Amount
		s.mu.Unlock()

		s.respond(w, r, apiResponse{
			Status:  true,
			Message: "Authorization hold created",
			Data:    map[string]any{"hold_ref": holdRef, "reference": holdRef},
		})
		log.Printf("Created hold %s for %d", holdRef, req.Amount)
	})

	http.HandleFunc("/authorizations/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || !strings.HasSuffix(r.URL.Path, "/capture") {
			http.Error(w, "Not found", http.StatusNotFound)
			return
		}
		if s.replay(w, r) {
			return
		}

		holdRef := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/authorizations/"), "/capture")
		s.mu.Lock()
		amount, ok := s.holds[holdRef]
		chargeRef, already := s.captured[holdRef]
		if ok && !already {
			chargeRef = "ch_" + holdRef
			s.captured[holdRef] = chargeRef
			if key := r.Header.Get("Idempotency-Key"); key != "" {
				txID := strings.TrimPrefix(key, "capture:")
				s.records[txID] = amount
			}
		}
		s.mu.Unlock()

		if !ok {
			w.WriteHeader(http.StatusNotFound)
			json.NewEncoder(w).Encode(apiResponse{Status: false, Message: "unknown hold"})
			return
		}
		s.respond(w, r, apiResponse{
			Status:  true,
			Message: "Hold captured",
			Data:    map[string]any{"charge_ref": chargeRef, "already_captured": already},
		})
		log.Printf("Captured hold %s as %s (already=%v)", holdRef, chargeRef, already)
	})

	http.HandleFunc("/transfers", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if s.replay(w, r) {
			return
		}

		transferRef := fmt.Sprintf("tr_%d", time.Now().UnixNano())
		s.respond(w, r, apiResponse{
			Status:  true,
			Message: "Transfer queued",
			Data:    map[string]any{"transfer_ref": transferRef},
		})
		log.Printf("Queued transfer %s", transferRef)
	})

	http.HandleFunc("/refunds", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if s.replay(w, r) {
			return
		}

		var req struct {
			Amount int64 `json:"amount"`
		}
		json.NewDecoder(r.Body).Decode(&req)

		refundRef := fmt.Sprintf("rf_%d", time.Now().UnixNano())
		if key := r.Header.Get("Idempotency-Key"); key != "" {
			txID := strings.TrimPrefix(key, "refund:")
			s.mu.Lock()
			s.refunds[txID] = req.Amount
			s.mu.Unlock()
		}
		s.respond(w, r, apiResponse{
			Status:  true,
			Message: "Refund issued",
			Data:    map[string]any{"refund_ref": refundRef},
		})
		log.Printf("Issued refund %s for %d", refundRef, req.Amount)
	})

	http.HandleFunc("/records/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		txID := strings.TrimPrefix(r.URL.Path, "/records/")
		s.mu.Lock()
		amount, ok := s.records[txID]
		s.mu.Unlock()

		if !ok {
			w.WriteHeader(http.StatusNotFound)
			json.NewEncoder(w).Encode(apiResponse{Status: false, Message: "no record"})
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(apiResponse{
			Status:  true,
			Message: "Settlement record",
			Data:    map[string]any{"transaction_id": txID, "amount": amount},
		})
	})

	log.Printf("Mock processor starting on %s...", port)
	if err := http.ListenAndServe(port, nil); err != nil {
		log.Fatal(err)
	}
}
