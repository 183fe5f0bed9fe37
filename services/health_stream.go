package services

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"go_jobs_backend/health"

	"github.com/gorilla/websocket"
)

// Stream configuration
const (
	MaxStreamClients     = 50
	StreamWriteTimeout   = 10 * time.Second
	StreamPongTimeout    = 60 * time.Second
	StreamPingInterval   = 30 * time.Second
	StreamSendBufferSize = 8
)

// streamClient is one connected operator dashboard
type streamClient struct {
	conn *websocket.Conn
	send chan []byte
}

// HealthStream broadcasts each health snapshot to connected operator
// dashboards over WebSocket
type HealthStream struct {
	clients    map[*streamClient]bool
	broadcast  chan health.Snapshot
	register   chan *streamClient
	unregister chan *streamClient
	shutdown   chan struct{}
	mu         sync.RWMutex
	upgrader   websocket.Upgrader
}

// NewHealthStream creates the stream hub and starts its run loop
func NewHealthStream() *HealthStream {
	hs := &HealthStream{
		clients:    make(map[*streamClient]bool),
		broadcast:  make(chan health.Snapshot, 16),
		register:   make(chan *streamClient),
		unregister: make(chan *streamClient),
		shutdown:   make(chan struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
	go hs.run()
	return hs
}

// Broadcast queues a snapshot for delivery to every connected client.
// Satisfies health.Publisher.
func (hs *HealthStream) Broadcast(snapshot health.Snapshot) {
	select {
	case hs.broadcast <- snapshot:
	default:
		log.Println("Health stream broadcast buffer full, dropping snapshot")
	}
}

// Shutdown closes all client connections and stops the hub
func (hs *HealthStream) Shutdown() {
	close(hs.shutdown)

	hs.mu.Lock()
	for client := range hs.clients {
		close(client.send)
		client.conn.Close()
	}
	hs.clients = make(map[*streamClient]bool)
	hs.mu.Unlock()
}

func (hs *HealthStream) run() {
	for {
		select {
		case <-hs.shutdown:
			return

		case client := <-hs.register:
			hs.mu.Lock()
			if len(hs.clients) >= MaxStreamClients {
				hs.mu.Unlock()
				client.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "Server at capacity"))
				client.conn.Close()
				continue
			}
			hs.clients[client] = true
			count := len(hs.clients)
			hs.mu.Unlock()
			log.Printf("Health stream client connected. Total clients: %d", count)

		case client := <-hs.unregister:
			hs.mu.Lock()
			if _, ok := hs.clients[client]; ok {
				delete(hs.clients, client)
				close(client.send)
			}
			hs.mu.Unlock()

		case snapshot := <-hs.broadcast:
			data, err := json.Marshal(snapshot)
			if err != nil {
				log.Printf("Error marshaling health snapshot: %v", err)
				continue
			}

			hs.mu.Lock()
			var dead []*streamClient
			for client := range hs.clients {
				select {
				case client.send <- data:
				default:
					dead = append(dead, client)
				}
			}
			for _, client := range dead {
				delete(hs.clients, client)
				close(client.send)
			}
			hs.mu.Unlock()
		}
	}
}

// HandleWebSocket upgrades the connection and registers the client
func (hs *HealthStream) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	hs.mu.RLock()
	atCapacity := len(hs.clients) >= MaxStreamClients
	hs.mu.RUnlock()

	if atCapacity {
		http.Error(w, "Server at capacity", http.StatusServiceUnavailable)
		return
	}

	conn, err := hs.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("Health stream upgrade error: %v", err)
		return
	}

	client := &streamClient{
		conn: conn,
		send: make(chan []byte, StreamSendBufferSize),
	}

	// The hub may already be gone; never block a late connect on it.
	select {
	case hs.register <- client:
	case <-hs.shutdown:
		conn.Close()
		return
	}

	go hs.writePump(client)
	go hs.readPump(client)
}

func (hs *HealthStream) writePump(client *streamClient) {
	ticker := time.NewTicker(StreamPingInterval)
	defer func() {
		ticker.Stop()
		client.conn.Close()
	}()

	for {
		select {
		case data, ok := <-client.send:
			client.conn.SetWriteDeadline(time.Now().Add(StreamWriteTimeout))
			if !ok {
				client.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := client.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			client.conn.SetWriteDeadline(time.Now().Add(StreamWriteTimeout))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (hs *HealthStream) readPump(client *streamClient) {
	defer func() {
		select {
		case hs.unregister <- client:
		case <-hs.shutdown:
		}
		client.conn.Close()
	}()

	client.conn.SetReadLimit(512)
	client.conn.SetReadDeadline(time.Now().Add(StreamPongTimeout))
	client.conn.SetPongHandler(func(string) error {
		client.conn.SetReadDeadline(time.Now().Add(StreamPongTimeout))
		return nil
	})

	// The health stream is one-way; discard anything the client sends.
	for {
		if _, _, err := client.conn.ReadMessage(); err != nil {
			return
		}
	}
}
