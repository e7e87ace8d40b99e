package utils

import (
	"bytes"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"time"
)

// The export collaborator persists durable spreadsheet records of financial
// snapshots. Export failures are logged and never fatal: the transaction log
// on the caisse remains the source of truth.

func postExport(payload map[string]string) {
	exportURL := os.Getenv("EXPORT_WEBHOOK_URL")
	if exportURL == "" {
		return
	}

	reqBody, _ := json.Marshal(payload)
	client := &http.Client{Timeout: 15 * time.Second}
	resp, err := client.Post(exportURL, "application/json", bytes.NewBuffer(reqBody))
	if err != nil {
		log.Printf("export failed for %v: %v", payload, err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.Printf("export for %v: non-200 response %d", payload, resp.StatusCode)
	}
}

// ExportCaisseSnapshot records a caisse state change under a reference id.
func ExportCaisseSnapshot(caisseID, referenceID string) {
	postExport(map[string]string{
		"kind":         "caisse",
		"caisse_id":    caisseID,
		"reference_id": referenceID,
	})
}

// ExportEntitySnapshot records an order or payment-request ledger change.
func ExportEntitySnapshot(entityID string) {
	postExport(map[string]string{
		"kind":      "entity",
		"entity_id": entityID,
	})
}
