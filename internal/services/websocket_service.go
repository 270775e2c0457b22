package services

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"agrimarket-backend/internal/metrics"
	"agrimarket-backend/internal/models"
)

const (
	feedWriteWait  = 10 * time.Second
	feedSendBuffer = 64
)

// FeedMessage is a frame exchanged with market feed subscribers
type FeedMessage struct {
	Type          string              `json:"type"`
	PlantedCropID int64               `json:"plantedCropId,omitempty"`
	Event         *models.MarketEvent `json:"event,omitempty"`
	Message       string              `json:"message,omitempty"`
}

// FeedClient is one websocket subscriber
type FeedClient struct {
	ID   string
	Conn *websocket.Conn
	Send chan FeedMessage
	feed *MarketFeed

	// planted crop ids the client follows; empty means every listing
	watching map[int64]bool
}

// MarketFeed fans committed workflow events out to websocket subscribers.
// It holds connections only, never workflow state.
type MarketFeed struct {
	clients    map[*FeedClient]bool
	broadcast  chan models.MarketEvent
	register   chan *FeedClient
	unregister chan *FeedClient
	stop       chan struct{}
	stopOnce   sync.Once
	mutex      sync.Mutex

	upgrader websocket.Upgrader
	logger   *zap.Logger
}

// NewMarketFeed creates and starts a market feed hub. A nil checkOrigin
// accepts every origin.
func NewMarketFeed(checkOrigin func(r *http.Request) bool, logger *zap.Logger) *MarketFeed {
	if logger == nil {
		logger = zap.NewNop()
	}
	if checkOrigin == nil {
		checkOrigin = func(r *http.Request) bool { return true }
	}

	feed := &MarketFeed{
		clients:    make(map[*FeedClient]bool),
		broadcast:  make(chan models.MarketEvent, 256),
		register:   make(chan *FeedClient),
		unregister: make(chan *FeedClient),
		stop:       make(chan struct{}),
		upgrader:   websocket.Upgrader{CheckOrigin: checkOrigin},
		logger:     logger,
	}

	go feed.run()
	return feed
}

// Publish queues an event for delivery. It never blocks the caller; events
// are dropped when the hub is saturated or stopped.
func (f *MarketFeed) Publish(event models.MarketEvent) {
	select {
	case <-f.stop:
		return
	default:
	}

	select {
	case f.broadcast <- event:
	default:
		f.logger.Warn("market feed saturated, dropping event", zap.String("type", string(event.Type)))
	}
}

// Subscribers returns the number of connected clients
func (f *MarketFeed) Subscribers() int {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return len(f.clients)
}

// Close disconnects every subscriber and stops the hub
func (f *MarketFeed) Close() {
	f.stopOnce.Do(func() {
		close(f.stop)
	})
}

// HandleWebSocket upgrades a request into a feed subscription
func (f *MarketFeed) HandleWebSocket(c *gin.Context) {
	conn, err := f.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		f.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	client := &FeedClient{
		ID:       uuid.New().String(),
		Conn:     conn,
		Send:     make(chan FeedMessage, feedSendBuffer),
		feed:     f,
		watching: make(map[int64]bool),
	}

	select {
	case f.register <- client:
	case <-f.stop:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

func (f *MarketFeed) run() {
	for {
		select {
		case client := <-f.register:
			f.mutex.Lock()
			f.clients[client] = true
			count := len(f.clients)
			f.mutex.Unlock()

			metrics.SetFeedSubscribers(count)
			f.deliver(client, FeedMessage{Type: "connected", Message: "subscribed to market feed"})

		case client := <-f.unregister:
			f.mutex.Lock()
			f.drop(client)
			count := len(f.clients)
			f.mutex.Unlock()

			metrics.SetFeedSubscribers(count)

		case event := <-f.broadcast:
			f.mutex.Lock()
			for client := range f.clients {
				if !client.follows(event) {
					continue
				}
				ev := event
				select {
				case client.Send <- FeedMessage{Type: string(event.Type), Event: &ev}:
				default:
					f.drop(client)
				}
			}
			f.mutex.Unlock()

		case <-f.stop:
			f.mutex.Lock()
			for client := range f.clients {
				f.drop(client)
			}
			f.mutex.Unlock()

			metrics.SetFeedSubscribers(0)
			return
		}
	}
}

// drop removes a client; callers hold the mutex
func (f *MarketFeed) drop(client *FeedClient) {
	if _, ok := f.clients[client]; ok {
		delete(f.clients, client)
		close(client.Send)
	}
}

func (f *MarketFeed) deliver(client *FeedClient, message FeedMessage) {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	if _, ok := f.clients[client]; !ok {
		return
	}
	select {
	case client.Send <- message:
	default:
		f.drop(client)
	}
}

func (f *MarketFeed) watch(client *FeedClient, plantedCropID int64, on bool) {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	if on {
		client.watching[plantedCropID] = true
	} else {
		delete(client.watching, plantedCropID)
	}
}

// follows reports whether the client wants the event; callers hold the mutex
func (c *FeedClient) follows(event models.MarketEvent) bool {
	if len(c.watching) == 0 || event.Transaction == nil {
		return true
	}
	return c.watching[event.Transaction.PlantedCropID]
}

func (c *FeedClient) readPump() {
	defer func() {
		select {
		case c.feed.unregister <- c:
		case <-c.feed.stop:
		}
		c.Conn.Close()
	}()

	for {
		var message FeedMessage
		if err := c.Conn.ReadJSON(&message); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.feed.logger.Debug("market feed read error", zap.String("client", c.ID), zap.Error(err))
			}
			return
		}

		switch message.Type {
		case "watch":
			if message.PlantedCropID > 0 {
				c.feed.watch(c, message.PlantedCropID, true)
			}
		case "unwatch":
			if message.PlantedCropID > 0 {
				c.feed.watch(c, message.PlantedCropID, false)
			}
		case "ping":
			c.feed.deliver(c, FeedMessage{Type: "pong"})
		}
	}
}

func (c *FeedClient) writePump() {
	defer c.Conn.Close()

	for message := range c.Send {
		c.Conn.SetWriteDeadline(time.Now().Add(feedWriteWait))
		if err := c.Conn.WriteJSON(message); err != nil {
			c.feed.logger.Debug("market feed write error", zap.String("client", c.ID), zap.Error(err))
			return
		}
	}
	c.Conn.SetWriteDeadline(time.Now().Add(feedWriteWait))
	c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
}
