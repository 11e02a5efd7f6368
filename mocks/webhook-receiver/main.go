// A webhook sink for local development: receives enrollment notifications,
// verifies the HMAC signature against the shared secret, and keeps the
// accepted deliveries in memory behind GET /deliveries so the end-to-end
// suite can assert on them.
package main

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"sync"
)

const signatureHeader = "X-Caregate-Signature"

type receiver struct {
	secret []byte

	mu       sync.Mutex
	accepted []json.RawMessage
}

func (rc *receiver) handleWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "read body", http.StatusBadRequest)
		return
	}

	mac := hmac.New(sha256.New, rc.secret)
	mac.Write(body)
	want := hex.EncodeToString(mac.Sum(nil))
	got := r.Header.Get(signatureHeader)
	if !hmac.Equal([]byte(want), []byte(got)) {
		log.Printf("rejected delivery: bad signature %q", got)
		http.Error(w, "bad signature", http.StatusUnauthorized)
		return
	}

	rc.mu.Lock()
	rc.accepted = append(rc.accepted, json.RawMessage(body))
	rc.mu.Unlock()

	log.Printf("accepted delivery: %s", body)
	w.WriteHeader(http.StatusNoContent)
}

func (rc *receiver) handleDeliveries(w http.ResponseWriter, _ *http.Request) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"deliveries": rc.accepted})
}

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "9092"
	}
	secret := os.Getenv("WEBHOOK_SIGNING_SECRET")
	if secret == "" {
		secret = "dev-webhook-secret"
	}

	rc := &receiver{secret: []byte(secret)}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /webhook", rc.handleWebhook)
	mux.HandleFunc("GET /deliveries", rc.handleDeliveries)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintln(w, "ok")
	})

	log.Printf("webhook receiver listening on :%s", port)
	log.Fatal(http.ListenAndServe(":"+port, mux))
}
