package services

import (
	"encoding/json"
	"sync"
	"time"

	"quickquiz/logger"
	"quickquiz/metrics"
	"quickquiz/models"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBuffer     = 64
)

// Hub fans out live response events to the sockets of quiz owners.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan quizMessage
	register   chan *Client
	unregister chan *Client
	mutex      sync.RWMutex
	metrics    *metrics.Metrics
	log        *logger.Logger
}

type Client struct {
	hub    *Hub
	id     string
	socket *websocket.Conn
	send   chan []byte
	quizID string
	userID string
}

type Message struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

type quizMessage struct {
	quizID string
	data   []byte
}

func NewHub(m *metrics.Metrics, log *logger.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan quizMessage, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		metrics:    m,
		log:        log,
	}
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mutex.Lock()
			h.clients[client] = true
			h.mutex.Unlock()
			h.metrics.FeedClients.Inc()
			h.log.WithQuizID(client.quizID).WithField("client_id", client.id).Debug("feed client registered")

		case client := <-h.unregister:
			h.mutex.Lock()
			h.remove(client)
			h.mutex.Unlock()

		case msg := <-h.broadcast:
			h.mutex.Lock()
			for client := range h.clients {
				if client.quizID != msg.quizID {
					continue
				}
				select {
				case client.send <- msg.data:
				default:
					h.log.WithQuizID(client.quizID).WithField("client_id", client.id).Warn("feed client send buffer full, dropping")
					h.remove(client)
				}
			}
			h.mutex.Unlock()
		}
	}
}

// remove must be called with the write lock held.
func (h *Hub) remove(client *Client) {
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
		h.metrics.FeedClients.Dec()
		h.log.WithQuizID(client.quizID).WithField("client_id", client.id).Debug("feed client unregistered")
	}
}

// ResponseSubmitted queues a response_submitted event for the quiz's sockets.
func (h *Hub) ResponseSubmitted(quizID string, response *models.Response) {
	h.BroadcastToQuiz(quizID, "response_submitted", response)
}

func (h *Hub) BroadcastToQuiz(quizID string, messageType string, payload interface{}) {
	data, err := json.Marshal(Message{Type: messageType, Payload: payload})
	if err != nil {
		h.log.WithError(err).Error("failed to marshal feed message")
		return
	}

	select {
	case h.broadcast <- quizMessage{quizID: quizID, data: data}:
	default:
		h.log.WithQuizID(quizID).Warn("feed broadcast queue full, dropping event")
	}
}

// ConnectedClients counts sockets watching the quiz.
func (h *Hub) ConnectedClients(quizID string) int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	n := 0
	for client := range h.clients {
		if client.quizID == quizID {
			n++
		}
	}
	return n
}

func (h *Hub) RegisterClient(conn *websocket.Conn, quizID, userID string) *Client {
	client := &Client{
		hub:    h,
		id:     uuid.NewString(),
		socket: conn,
		send:   make(chan []byte, sendBuffer),
		quizID: quizID,
		userID: userID,
	}

	h.register <- client

	go client.writePump()
	go client.readPump()

	return client
}

func (h *Hub) UnregisterClient(client *Client) {
	h.unregister <- client
}

func (c *Client) readPump() {
	defer func() {
		c.hub.UnregisterClient(c)
		c.socket.Close()
	}()

	c.socket.SetReadLimit(maxMessageSize)
	c.socket.SetReadDeadline(time.Now().Add(pongWait))
	c.socket.SetPongHandler(func(string) error {
		return c.socket.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.socket.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.log.WithQuizID(c.quizID).WithError(err).Warn("feed read error")
			}
			break
		}

		var msg Message
		if err := json.Unmarshal(message, &msg); err != nil {
			c.hub.log.WithQuizID(c.quizID).WithError(err).Debug("ignoring malformed feed message")
			continue
		}

		c.handleMessage(msg)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.socket.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.socket.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.socket.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.socket.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.socket.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.socket.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) handleMessage(msg Message) {
	switch msg.Type {
	case "ping":
		data, _ := json.Marshal(Message{Type: "pong", Payload: "pong"})
		c.hub.mutex.RLock()
		if c.hub.clients[c] {
			select {
			case c.send <- data:
			default:
			}
		}
		c.hub.mutex.RUnlock()

	default:
		c.hub.log.WithQuizID(c.quizID).WithField("type", msg.Type).Debug("unknown feed message type")
	}
}
