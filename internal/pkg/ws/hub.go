package ws

import (
	"encoding/json"
	"log"
	"sync"

	"github.com/gorilla/websocket"
)

// Hub fans job-progress messages out to the WebSocket clients watching
// each job. A job can have several watchers (multiple tabs, reconnects).
type Hub struct {
	clients map[string]map[*Client]struct{}
	mu      sync.RWMutex
}

type Client struct {
	JobID string
	Conn  *websocket.Conn
	mu    sync.Mutex // serializes writes on the connection
}

type Message struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[string]map[*Client]struct{}),
	}
}

func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.clients[client.JobID] == nil {
		h.clients[client.JobID] = make(map[*Client]struct{})
	}
	h.clients[client.JobID][client] = struct{}{}
	log.Printf("Watcher connected for job %s, watchers: %d", client.JobID, len(h.clients[client.JobID]))
}

func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if conns, ok := h.clients[client.JobID]; ok {
		delete(conns, client)
		if len(conns) == 0 {
			delete(h.clients, client.JobID)
		}
	}
	log.Printf("Watcher disconnected for job %s", client.JobID)
}

// SendToJob delivers msg to every watcher of the job.
func (h *Hub) SendToJob(jobID string, msg *Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	h.mu.RLock()
	conns, ok := h.clients[jobID]
	if !ok {
		h.mu.RUnlock()
		return nil
	}
	// Copy the references to avoid holding the lock while writing.
	clients := make([]*Client, 0, len(conns))
	for c := range conns {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		c.mu.Lock()
		err := c.Conn.WriteMessage(websocket.TextMessage, data)
		c.mu.Unlock()
		if err != nil {
			log.Printf("SendToJob write error for job %s: %v", jobID, err)
		}
	}
	return nil
}

// WatcherCount returns the number of connected watchers across all jobs.
func (h *Hub) WatcherCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	total := 0
	for _, conns := range h.clients {
		total += len(conns)
	}
	return total
}
