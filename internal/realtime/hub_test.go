package realtime

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/ikkii-gg/ikkii-server/internal/duel"
)

const (
	mintSOL = "So11111111111111111111111111111111111111112"
	walletA = "4Nd1mBQtrMJVYVfKf2PJy9NZUZdTAsp7D4xWLs4gDB4T"
	walletB = "9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM"
	walletC = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
)

func testHub() *Hub {
	return NewHub(slog.Default())
}

func testDuel() *duel.Duel {
	return &duel.Duel{
		ID:        "duel_test",
		Player1:   walletA,
		Player2:   walletB,
		Stake:     "25",
		TokenMint: mintSOL,
		Status:    duel.StatusActive,
	}
}

// ---------------------------------------------------------------------------
// shouldSend tests
// ---------------------------------------------------------------------------

func TestShouldSend_AllEvents(t *testing.T) {
	h := testHub()
	client := &Client{sub: Subscription{AllEvents: true}}

	event := &Event{Type: "duel.created", Timestamp: time.Now(), Duel: testDuel()}
	if !h.shouldSend(client, event) {
		t.Error("AllEvents client should receive all events")
	}
}

func TestShouldSend_EventTypeFilter(t *testing.T) {
	h := testHub()

	client := &Client{sub: Subscription{
		EventTypes: []string{"duel.settled", "duel.disputed"},
	}}

	settled := &Event{Type: "duel.settled", Duel: testDuel()}
	disputed := &Event{Type: "duel.disputed", Duel: testDuel()}
	created := &Event{Type: "duel.created", Duel: testDuel()}

	if !h.shouldSend(client, settled) {
		t.Error("Should receive duel.settled events")
	}
	if !h.shouldSend(client, disputed) {
		t.Error("Should receive duel.disputed events")
	}
	if h.shouldSend(client, created) {
		t.Error("Should NOT receive duel.created events")
	}
}

func TestShouldSend_PlayerFilter(t *testing.T) {
	h := testHub()

	client := &Client{sub: Subscription{
		Players: []string{walletA},
	}}

	involving := &Event{Type: "duel.joined", Duel: testDuel()}
	if !h.shouldSend(client, involving) {
		t.Error("Should match duels where the watched wallet is player1")
	}

	asChallenger := &Event{Type: "duel.joined", Duel: &duel.Duel{
		Player1: walletC, Player2: walletA, Status: duel.StatusActive,
	}}
	if !h.shouldSend(client, asChallenger) {
		t.Error("Should match duels where the watched wallet is player2")
	}

	unrelated := &Event{Type: "duel.joined", Duel: &duel.Duel{
		Player1: walletB, Player2: walletC, Status: duel.StatusActive,
	}}
	if h.shouldSend(client, unrelated) {
		t.Error("Should NOT match duels between other players")
	}
}

func TestShouldSend_MintFilter(t *testing.T) {
	h := testHub()

	client := &Client{sub: Subscription{
		Mints: []string{mintSOL},
	}}

	matching := &Event{Type: "duel.created", Duel: testDuel()}
	if !h.shouldSend(client, matching) {
		t.Error("Should receive duels staked in the watched mint")
	}

	other := &Event{Type: "duel.created", Duel: &duel.Duel{
		Player1: walletA, TokenMint: walletC, Status: duel.StatusOpen,
	}}
	if h.shouldSend(client, other) {
		t.Error("Should NOT receive duels staked in other mints")
	}
}

func TestShouldSend_EmptySubscription(t *testing.T) {
	h := testHub()

	// No filters, not AllEvents
	client := &Client{sub: Subscription{}}

	event := &Event{Type: "duel.created", Duel: testDuel()}
	if !h.shouldSend(client, event) {
		t.Error("Empty subscription (no filters) should receive events")
	}
}

// ---------------------------------------------------------------------------
// Hub lifecycle tests
// ---------------------------------------------------------------------------

func TestHub_Stats_Initial(t *testing.T) {
	h := testHub()

	stats := h.Stats()
	if stats["connectedClients"].(int) != 0 {
		t.Errorf("Expected 0 connected clients, got %v", stats["connectedClients"])
	}
	if stats["totalEvents"].(int64) != 0 {
		t.Errorf("Expected 0 total events, got %v", stats["totalEvents"])
	}
}

func TestHub_BroadcastAndStats(t *testing.T) {
	h := testHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go h.Run(ctx)
	time.Sleep(50 * time.Millisecond)

	// Broadcast an event
	h.Broadcast(&Event{Type: "duel.created", Timestamp: time.Now(), Duel: testDuel()})
	time.Sleep(50 * time.Millisecond)

	stats := h.Stats()
	if stats["totalEvents"].(int64) != 1 {
		t.Errorf("Expected 1 total event, got %v", stats["totalEvents"])
	}
}

func TestHub_RegisterUnregister(t *testing.T) {
	h := testHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go h.Run(ctx)
	time.Sleep(50 * time.Millisecond)

	client := &Client{
		hub:  h,
		send: make(chan []byte, 256),
		sub:  Subscription{AllEvents: true},
	}

	h.register <- client
	time.Sleep(50 * time.Millisecond)

	stats := h.Stats()
	if stats["connectedClients"].(int) != 1 {
		t.Errorf("Expected 1 connected client, got %v", stats["connectedClients"])
	}
	if stats["peakClients"].(int64) != 1 {
		t.Errorf("Expected peak 1, got %v", stats["peakClients"])
	}

	h.unregister <- client
	time.Sleep(50 * time.Millisecond)

	stats = h.Stats()
	if stats["connectedClients"].(int) != 0 {
		t.Errorf("Expected 0 connected clients after unregister, got %v", stats["connectedClients"])
	}
	// Peak should still be 1
	if stats["peakClients"].(int64) != 1 {
		t.Errorf("Expected peak still 1, got %v", stats["peakClients"])
	}
}

func TestHub_BroadcastToClient(t *testing.T) {
	h := testHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go h.Run(ctx)
	time.Sleep(50 * time.Millisecond)

	client := &Client{
		hub:  h,
		send: make(chan []byte, 256),
		sub:  Subscription{AllEvents: true},
	}

	h.register <- client
	time.Sleep(50 * time.Millisecond)

	h.EmitDuelEvent("duel.settled", testDuel())

	select {
	case msg := <-client.send:
		if len(msg) == 0 {
			t.Error("Expected non-empty message")
		}
	case <-time.After(time.Second):
		t.Error("Timeout waiting for broadcast")
	}
}

func TestHub_ContextCancellation(t *testing.T) {
	h := testHub()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case <-done:
		// Hub stopped
	case <-time.After(2 * time.Second):
		t.Error("Hub did not stop after context cancellation")
	}
}

func TestHub_FilteredBroadcast(t *testing.T) {
	h := testHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go h.Run(ctx)
	time.Sleep(50 * time.Millisecond)

	// Client only wants settlements
	client := &Client{
		hub:  h,
		send: make(chan []byte, 256),
		sub:  Subscription{EventTypes: []string{"duel.settled"}},
	}

	h.register <- client
	time.Sleep(50 * time.Millisecond)

	// Send a created event (should be filtered out)
	h.Broadcast(&Event{Type: "duel.created", Timestamp: time.Now(), Duel: testDuel()})
	time.Sleep(100 * time.Millisecond)

	select {
	case <-client.send:
		t.Error("Client should NOT receive duel.created event")
	default:
		// Good - filtered out
	}

	// Send a settled event (should be received)
	h.Broadcast(&Event{Type: "duel.settled", Timestamp: time.Now(), Duel: testDuel()})

	select {
	case msg := <-client.send:
		if len(msg) == 0 {
			t.Error("Expected non-empty message")
		}
	case <-time.After(time.Second):
		t.Error("Client should receive duel.settled event")
	}
}
