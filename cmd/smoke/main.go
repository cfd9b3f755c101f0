package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"ndjobi.org/internal/domain"
)

func main() {
	httpBase := envOr("NDJOBI_SMOKE_HTTP", "http://localhost:8080")
	grpcAddr := envOr("NDJOBI_SMOKE_GRPC", "localhost:9090")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := grpc.NewClient(grpcAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		log.Fatalf("dial grpc at %s: %v", grpcAddr, err)
	}
	defer conn.Close()
	health, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: "ndjobi-api"})
	if err != nil {
		log.Fatalf("grpc health: %v", err)
	}
	if health.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		log.Fatalf("grpc health status %v", health.GetStatus())
	}

	client := &http.Client{Timeout: 5 * time.Second}
	scope := map[string]string{"X-App-Id": "app-ndjobi-demo"}

	var caps struct {
		AppID   string `json:"app_id"`
		Modules map[string]struct {
			Enabled bool `json:"enabled"`
		} `json:"modules"`
	}
	mustDo(client, http.MethodGet, httpBase+"/v1/capabilities", nil, scope, http.StatusOK, &caps)
	if !caps.Modules["icom"].Enabled {
		log.Fatalf("icom disabled for %s", caps.AppID)
	}

	var conv domain.Conversation
	mustDo(client, http.MethodPost, httpBase+"/v1/conversations", map[string]any{
		"participants": []domain.Participant{{AppID: "app-ndjobi-demo"}, {AppID: "app-akanda-market"}},
	}, scope, http.StatusCreated, &conv)

	var msg domain.Message
	mustDo(client, http.MethodPost, httpBase+"/v1/conversations/"+conv.ID+"/messages", map[string]any{
		"content": fmt.Sprintf("smoke %d", time.Now().Unix()),
	}, scope, http.StatusCreated, &msg)

	var list struct {
		Items []domain.Message `json:"items"`
	}
	mustDo(client, http.MethodGet, httpBase+"/v1/conversations/"+conv.ID+"/messages", nil, scope, http.StatusOK, &list)
	if len(list.Items) != 1 || list.Items[0].ID != msg.ID {
		log.Fatalf("unexpected messages: %+v", list.Items)
	}

	fmt.Printf("✅ ndjobi-api smoke test passed: conversation=%s message=%s\n", conv.ID, msg.ID)
}

func mustDo(client *http.Client, method, url string, body any, headers map[string]string, want int, out any) {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			log.Fatalf("marshal %s %s: %v", method, url, err)
		}
	}
	req, err := http.NewRequest(method, url, bytes.NewReader(payload))
	if err != nil {
		log.Fatalf("request %s %s: %v", method, url, err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := client.Do(req)
	if err != nil {
		log.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != want {
		log.Fatalf("%s %s: status %d, want %d", method, url, resp.StatusCode, want)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			log.Fatalf("decode %s %s: %v", method, url, err)
		}
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
