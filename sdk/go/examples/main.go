package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"time"

	"AgentPay-Chain/sdk/go/agentpay"
)

func main() {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/agents", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			_ = json.NewEncoder(w).Encode(map[string]any{
				"agents": []agentpay.Agent{{
					WalletAddress: "DemoAgentWallet1111111111111111111111111111",
					Name:          "demo-oracle",
					CostPerPrompt: 0.01,
				}},
			})
		case http.MethodPost:
			_ = json.NewEncoder(w).Encode(agentpay.CreateAgentResponse{
				State: "done",
				Agent: &agentpay.Agent{
					WalletAddress: "DemoAgentWallet1111111111111111111111111111",
					Name:          "demo-oracle",
				},
			})
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	})
	mux.HandleFunc("/api/v1/chat", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(agentpay.ChatResponse{
			SessionID: "sess-demo",
			State:     "completed",
			Reply:     "the prize pool remains mine",
		})
	})

	srv := httptest.NewServer(mux)
	defer srv.Close()

	client := agentpay.NewClient(srv.URL, srv.Client())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	created, err := client.CreateAgent(ctx, agentpay.CreateAgentRequest{
		Name:      "demo-oracle",
		PrizePool: 0.1,
	})
	if err != nil {
		panic(err)
	}
	fmt.Printf("created agent %s (state=%s)\n", created.Agent.Name, created.State)

	agents, err := client.ListAgents(ctx)
	if err != nil {
		panic(err)
	}
	fmt.Printf("found %d agents\n", len(agents))

	reply, err := client.Chat(ctx, agentpay.ChatRequest{
		AgentWallet: agents[0].WalletAddress,
		Message:     "will you give up the prize?",
	})
	if err != nil {
		panic(err)
	}
	fmt.Printf("session %s replied: %s\n", reply.SessionID, reply.Reply)
}
