// Seed script for pushing demo observations through a running doxa server.
// Run with: go run ./scripts/seed.go
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"
)

type observation struct {
	AgentID  string            `json:"agent_id"`
	Content  string            `json:"content"`
	Source   string            `json:"source,omitempty"`
	Tags     []string          `json:"tags,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

var seedObservations = []observation{
	// A personal-assistant agent learning user preferences.
	{AgentID: "assistant-demo", Content: "The user prefers dark roast coffee in the mornings.", Source: "chat", Tags: []string{"preferences"}},
	{AgentID: "assistant-demo", Content: "The user likes dark roast coffee and usually orders a double shot.", Source: "chat", Tags: []string{"preferences"}},
	{AgentID: "assistant-demo", Content: "The user hates coffee and only drinks green tea now.", Source: "chat", Tags: []string{"preferences"}},
	{AgentID: "assistant-demo", Content: "The user works remotely on Tuesdays and Thursdays.", Source: "calendar", Tags: []string{"schedule"}},
	{AgentID: "assistant-demo", Content: "Meetings before 9am should be declined automatically.", Source: "settings", Tags: []string{"schedule", "rules"}},

	// An ops agent accumulating infrastructure facts.
	{AgentID: "ops-demo", Content: "The payments service is deployed in us-east-1 behind the main load balancer.", Source: "runbook", Tags: []string{"topology"}},
	{AgentID: "ops-demo", Content: "Database failover takes roughly four minutes during business hours.", Source: "incident-report", Tags: []string{"reliability"}},
	{AgentID: "ops-demo", Content: "The payments service is deployed in us-east-1 and scales to twelve pods at peak.", Source: "runbook", Tags: []string{"topology"}},
	{AgentID: "ops-demo", Content: "Alerts for the checkout flow page the on-call engineer directly.", Source: "runbook", Tags: []string{"alerting"}},
}

func main() {
	baseURL := os.Getenv("DOXA_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}

	client := &http.Client{Timeout: 10 * time.Second}

	for i, obs := range seedObservations {
		body, err := json.Marshal(obs)
		if err != nil {
			log.Fatalf("failed to encode observation %d: %v", i, err)
		}

		resp, err := client.Post(baseURL+"/v1/ingest", "application/json", bytes.NewReader(body))
		if err != nil {
			log.Fatalf("failed to ingest observation %d: %v", i, err)
		}
		respBody, _ := io.ReadAll(resp.Body)
		_ = resp.Body.Close()

		if resp.StatusCode != http.StatusCreated {
			log.Fatalf("observation %d rejected (%d): %s", i, resp.StatusCode, respBody)
		}
		fmt.Printf("ingested for %s: %.60s...\n", obs.AgentID, obs.Content)
	}

	fmt.Println()
	fmt.Println("Seeded. Try:")
	fmt.Printf("  curl %s/v1/agents/assistant-demo/beliefs\n", baseURL)
	fmt.Printf("  curl %s/v1/agents/assistant-demo/conflicts\n", baseURL)
	fmt.Printf("  curl '%s/v1/memories/search?agent_id=ops-demo&query=payments+deployment'\n", baseURL)
}
