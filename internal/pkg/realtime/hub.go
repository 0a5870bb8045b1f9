package realtime

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"

	"github.com/planboard/planboard/app/models"
)

// PaymentEventName is the single event name pushed to clients.
const PaymentEventName = "payment_event"

const (
	writeWait      = 10 * time.Second
	pingPeriod     = 30 * time.Second
	sendBufferSize = 16
)

// Message is the wire format pushed to every connected client. The channel
// is shared: there is no per-user subscription concept, so each record
// carries customer identity and clients filter by their own.
type Message struct {
	Event        string               `json:"event"`
	Type         string               `json:"type"`
	Order        *models.Order        `json:"order,omitempty"`
	Subscription *models.Subscription `json:"subscription,omitempty"`
}

// Hub maintains connected WebSocket clients and fans payment events out to
// all of them. Delivery is best-effort, at-most-once: slow clients are
// evicted and disconnected clients reconcile from the store on reconnect.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	stopCh     chan struct{}
	mu         sync.RWMutex
}

// NewHub creates an empty hub. Run must be called before clients attach.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		stopCh:     make(chan struct{}),
	}
}

// Run is the hub's main loop; it owns the client set.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			log.Infof("[Realtime] Client %s connected", client.id)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
			log.Infof("[Realtime] Client %s disconnected", client.id)

		case message := <-h.broadcast:
			h.mu.RLock()
			clients := make([]*Client, 0, len(h.clients))
			for client := range h.clients {
				clients = append(clients, client)
			}
			h.mu.RUnlock()

			for _, client := range clients {
				select {
				case client.send <- message:
				default:
					// Send buffer full: drop the client rather than
					// blocking the broadcast for everyone else.
					h.mu.Lock()
					if _, ok := h.clients[client]; ok {
						delete(h.clients, client)
						close(client.send)
					}
					h.mu.Unlock()
					log.Warnf("[Realtime] Client %s too slow, dropped", client.id)
				}
			}

		case <-h.stopCh:
			h.mu.Lock()
			for client := range h.clients {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
			return
		}
	}
}

// Stop shuts the hub down and disconnects all clients.
func (h *Hub) Stop() {
	close(h.stopCh)
}

// attach hands a client to the run loop. After Stop the loop is gone, so
// the stop channel keeps late connection setup from blocking forever.
func (h *Hub) attach(c *Client) {
	select {
	case h.register <- c:
	case <-h.stopCh:
	}
}

// detach removes a client from the run loop; safe to call after Stop.
func (h *Hub) detach(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.stopCh:
	}
}

// ClientCount returns the number of currently connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// BroadcastPaymentEvent pushes a payment event to every connected client.
// Marshal failures are logged and dropped; broadcast never blocks ingestion.
func (h *Hub) BroadcastPaymentEvent(eventType string, order *models.Order, sub *models.Subscription) {
	msg := Message{
		Event:        PaymentEventName,
		Type:         eventType,
		Order:        order,
		Subscription: sub,
	}
	data, err := json.Marshal(msg)
	if err != nil {
		log.Errorf("[Realtime] Failed to marshal %s event: %v", eventType, err)
		return
	}

	select {
	case h.broadcast <- data:
	default:
		log.Warn("[Realtime] Broadcast buffer full, event dropped")
	}
}

func newClientID() string {
	return uuid.NewString()
}
