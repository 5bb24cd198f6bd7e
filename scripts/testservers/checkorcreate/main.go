// Command checkorcreate is a local stand-in for the key registry's
// POST /api/keys/check-or-create endpoint, for trying keyload without the real service.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const maxKeyLength = 255

type createKeyRequest struct {
	KeyValue      string `json:"keyValue"`
	AccountNumber string `json:"accountNumber"`
	OwnerDocument string `json:"ownerDocument"`
	EntityCode    string `json:"entityCode"`
}

type createKeyResponse struct {
	Created   bool    `json:"created"`
	Exists    bool    `json:"exists"`
	KeyID     string  `json:"keyId,omitempty"`
	KeyValue  string  `json:"keyValue,omitempty"`
	LatencyMs float64 `json:"latencyMs"`
	Source    string  `json:"source,omitempty"`
	Message   string  `json:"message,omitempty"`
}

// registry keeps keys in memory. The first repeat lookup of a key reports
// "database" and later ones "cache".
type registry struct {
	mu           sync.Mutex
	keys         map[string]string // keyValue -> keyId
	cached       map[string]bool
	entities     map[string]bool
	existsStatus int
	delay        time.Duration
}

func newRegistry(existsStatus int, delay time.Duration, entities ...string) *registry {
	r := &registry{
		keys:         map[string]string{},
		cached:       map[string]bool{},
		entities:     map[string]bool{},
		existsStatus: existsStatus,
		delay:        delay,
	}
	for _, e := range entities {
		r.entities[e] = true
	}
	return r
}

func main() {
	port := flag.Int("port", 8080, "Listening port")
	existsStatus := flag.Int("exists-status", http.StatusOK, "Status returned for keys that already exist (200 or 404)")
	delay := flag.Duration("delay", 0, "Artificial latency added to every check-or-create call")
	entities := flag.String("entities", "BA", "Comma separated active entity codes")
	flag.Parse()

	if *port <= 0 {
		log.Fatalf("port must be > 0")
	}

	reg := newRegistry(*existsStatus, *delay, strings.Split(*entities, ",")...)
	addr := fmt.Sprintf(":%d", *port)
	log.Printf("check-or-create server listening on %s", addr)
	log.Fatal(http.ListenAndServe(addr, reg.routes()))
}

func (r *registry) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/keys/check-or-create", r.handleCheckOrCreate)
	mux.HandleFunc("/api/keys/health", func(w http.ResponseWriter, _ *http.Request) {
		respondJSON(w, http.StatusOK, map[string]any{"status": "UP", "service": "key-registry"})
	})
	return mux
}

func (r *registry) handleCheckOrCreate(w http.ResponseWriter, req *http.Request) {
	start := time.Now()
	if req.Method != http.MethodPost {
		respondJSON(w, http.StatusMethodNotAllowed, createKeyResponse{Message: "method not allowed"})
		return
	}
	var body createKeyRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		respondJSON(w, http.StatusBadRequest, createKeyResponse{Message: "invalid JSON body"})
		return
	}
	if r.delay > 0 {
		time.Sleep(r.delay)
	}

	status, resp := r.checkOrCreate(body)
	resp.LatencyMs = float64(time.Since(start).Microseconds()) / 1000
	respondJSON(w, status, resp)
}

func (r *registry) checkOrCreate(body createKeyRequest) (int, createKeyResponse) {
	key := body.KeyValue
	if strings.TrimSpace(key) == "" || len(key) > maxKeyLength {
		return http.StatusBadRequest, createKeyResponse{Message: "Invalid key format"}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if id, ok := r.keys[key]; ok {
		source := "database"
		if r.cached[key] {
			source = "cache"
		}
		r.cached[key] = true
		return r.existsStatus, createKeyResponse{Exists: true, KeyID: id, KeyValue: key, Source: source}
	}
	if !r.entities[body.EntityCode] {
		return http.StatusBadRequest, createKeyResponse{
			Message: "Financial entity not found or inactive: " + body.EntityCode,
		}
	}

	id := uuid.NewString()
	r.keys[key] = id
	return http.StatusOK, createKeyResponse{Created: true, KeyID: id, KeyValue: key, Source: "new"}
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
