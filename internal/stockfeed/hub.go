// Package stockfeed pushes stock levels to WebSocket clients.
package stockfeed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/xtrntr/marketplace/internal/models"
	"github.com/xtrntr/marketplace/internal/orders"
	"github.com/xtrntr/marketplace/internal/store"
)

const (
	sendBuffer = 16
	writeWait  = 5 * time.Second
)

// StockLevel is the public view of one product's stock
type StockLevel struct {
	ProductID int    `json:"id"`
	Name      string `json:"name"`
	Quantity  int    `json:"quantity"`
}

// Message is what clients receive: a full snapshot on connect, updates after orders
type Message struct {
	Type     string       `json:"type"`
	Products []StockLevel `json:"products"`
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub tracks connected clients. A client whose send buffer is full is
// disconnected instead of slowing down the others.
type Hub struct {
	catalog  store.Catalog
	logger   *zap.Logger
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*client]struct{}
	closed  bool
}

// NewHub creates a hub reading stock levels from catalog
func NewHub(catalog store.Catalog, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		catalog: catalog,
		logger:  logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // Allow all origins in development
			},
		},
		clients: make(map[*client]struct{}),
	}
}

// Len returns the number of connected clients
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// ServeHTTP upgrades the connection and sends the current catalog snapshot
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("failed to upgrade connection", zap.Error(err))
		return
	}

	c := &client{conn: conn, send: make(chan []byte, sendBuffer)}
	if !h.register(c) {
		conn.Close()
		return
	}
	go c.writeLoop(h.logger)

	products, err := h.catalog.ListProducts(r.Context())
	if err != nil {
		h.logger.Warn("failed to load stock snapshot", zap.Error(err))
	} else if data, err := encode("snapshot", products); err == nil {
		h.deliver(c, data)
	}

	// Clients only listen; reading detects disconnects.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	h.unregister(c)
}

// OrderPlaced broadcasts the new stock levels of the products in the order
func (h *Hub) OrderPlaced(ctx context.Context, event orders.OrderPlaced) error {
	ids := event.ProductIDs()
	products := make([]models.Product, 0, len(ids))
	for _, id := range ids {
		p, err := h.catalog.GetProduct(ctx, id)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				continue
			}
			return fmt.Errorf("failed to load stock level: %w", err)
		}
		products = append(products, *p)
	}
	data, err := encode("update", products)
	if err != nil {
		return err
	}
	h.Broadcast(data)
	return nil
}

// Broadcast queues data for every client
func (h *Hub) Broadcast(data []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			h.logger.Warn("dropping slow stock feed client")
			h.remove(c)
		}
	}
}

// Close disconnects every client and refuses new ones
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		h.remove(c)
	}
}

func (h *Hub) deliver(c *client, data []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	select {
	case c.send <- data:
	default:
		h.remove(c)
	}
}

func (h *Hub) register(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	return true
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.remove(c)
}

// remove must be called with h.mu held
func (h *Hub) remove(c *client) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
}

func (c *client) writeLoop(logger *zap.Logger) {
	defer c.conn.Close()
	for data := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			logger.Debug("stock feed write failed", zap.Error(err))
			// Closing the conn ends the read loop, which unregisters us.
			c.conn.Close()
			for range c.send {
			}
			return
		}
	}
	c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
}

func encode(kind string, products []models.Product) ([]byte, error) {
	msg := Message{Type: kind, Products: make([]StockLevel, 0, len(products))}
	for _, p := range products {
		msg.Products = append(msg.Products, StockLevel{ProductID: p.ID, Name: p.Name, Quantity: p.QuantityAvailable})
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to encode stock message: %w", err)
	}
	return data, nil
}
