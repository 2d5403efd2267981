package services

import (
	"sync"

	"github.com/graphmail/core/internal/graph"
)

// GraphClients hands out one API client per tenant credential. Clients share
// the per-credential rate limiter, so every consumer of a credential counts
// against the same budget.
type GraphClients struct {
	cfg    graph.ClientConfig
	tokens *TokenService

	mu      sync.Mutex
	clients map[uint]*graph.Client
}

// NewGraphClients creates a client factory backed by the token service.
func NewGraphClients(cfg graph.ClientConfig, tokens *TokenService) *GraphClients {
	return &GraphClients{
		cfg:     cfg,
		tokens:  tokens,
		clients: make(map[uint]*graph.Client),
	}
}

// For returns the client for a credential, creating it on first use.
func (g *GraphClients) For(credentialID uint) *graph.Client {
	g.mu.Lock()
	defer g.mu.Unlock()
	client, ok := g.clients[credentialID]
	if !ok {
		client = graph.NewClient(g.cfg, g.tokens.TokenSourceFor(credentialID))
		g.clients[credentialID] = client
	}
	return client
}
