// A stand-in for the OCR extraction vendor, used by local development and the
// end-to-end suite. It answers POST /v1/extract with deterministic results:
// the confidence is derived from the storage handle, so re-running a scenario
// produces the same outcome. Set MOCK_CONFIDENCE to force a fixed score
// (e.g. MOCK_CONFIDENCE=0.60 to exercise the low-confidence path).
package main

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
	"log"
	"net/http"
	"os"
	"strconv"
)

type extractRequest struct {
	Handle       string `json:"handle"`
	DocumentType string `json:"document_type"`
}

type extractResponse struct {
	Confidence       float64           `json:"confidence"`
	Fields           map[string]string `json:"fields"`
	FlaggedSensitive bool              `json:"flagged_sensitive"`
}

var fieldsByType = map[string]map[string]string{
	"ID": {
		"full_name":       "Ada Nilsen",
		"document_number": "ID-4471-2209",
		"date_of_birth":   "1987-04-12",
	},
	"PROOF_OF_ADDRESS": {
		"full_name": "Ada Nilsen",
		"address":   "12 Storgata, 0155 Oslo",
		"issued_at": "2026-07-01",
	},
	"HEALTH_DECLARATION": {
		"full_name": "Ada Nilsen",
		"signed_at": "2026-08-15",
	},
}

// confidenceFor spreads handles over [0.86, 1.0] so runs without
// MOCK_CONFIDENCE always clear a 0.85 threshold, deterministically.
func confidenceFor(handle string) float64 {
	h := fnv.New32a()
	h.Write([]byte(handle))
	return 0.86 + float64(h.Sum32()%14)/100
}

func handleExtract(fixed float64, useFixed bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req extractRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}

		confidence := confidenceFor(req.Handle)
		if useFixed {
			confidence = fixed
		}
		fields := fieldsByType[req.DocumentType]
		if fields == nil {
			fields = map[string]string{"full_name": "Ada Nilsen"}
		}

		resp := extractResponse{
			Confidence:       confidence,
			Fields:           fields,
			FlaggedSensitive: req.DocumentType == "ID" || req.DocumentType == "HEALTH_DECLARATION",
		}
		log.Printf("extract handle=%s type=%s confidence=%.2f", req.Handle, req.DocumentType, confidence)

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}
}

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "9091"
	}

	var fixed float64
	useFixed := false
	if raw := os.Getenv("MOCK_CONFIDENCE"); raw != "" {
		parsed, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			log.Fatalf("invalid MOCK_CONFIDENCE %q: %v", raw, err)
		}
		fixed, useFixed = parsed, true
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/extract", handleExtract(fixed, useFixed))
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintln(w, "ok")
	})

	log.Printf("extraction mock listening on :%s", port)
	log.Fatal(http.ListenAndServe(":"+port, mux))
}
