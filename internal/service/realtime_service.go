package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/ravi-anand/chatwave-api/internal/dto"
	"github.com/ravi-anand/chatwave-api/internal/observability"
)

const (
	realtimeSendBufferSize = 32
	realtimePingInterval   = 30 * time.Second
	realtimeReadTimeout    = 60 * time.Second
)

// RealtimeConnectionOptions wraps metadata extracted during the HTTP upgrade.
type RealtimeConnectionOptions struct {
	UserID        uint
	CorrelationID string
	Context       context.Context
}

// RealtimeService is the fanout router: it tracks live connections per user
// and per chat room, relays typing state within rooms and delivers new
// messages to every member's personal channel.
type RealtimeService interface {
	ServeConnection(conn *websocket.Conn, opts RealtimeConnectionOptions)
	Start(ctx context.Context)
}

type realtimeService struct {
	registry    *connectionRegistry
	redis       *redis.Client
	redisStream string
	nats        *nats.Conn
	natsSubject string
	logger      zerolog.Logger
	nodeID      string
}

// connectionRegistry is the process-local mapping from users and chat rooms
// to live connections. It is rebuilt from nothing on restart; one mutex
// guards all mutation.
type connectionRegistry struct {
	mu    sync.RWMutex
	users map[uint]map[*realtimeClient]struct{}
	rooms map[uint]map[*realtimeClient]struct{}
	log   zerolog.Logger
}

type realtimeClient struct {
	conn    *websocket.Conn
	send    chan dto.ServerEvent
	options RealtimeConnectionOptions
	service *realtimeService

	mu     sync.Mutex
	bound  bool
	rooms  map[uint]struct{}
	closed chan struct{}
	once   sync.Once
}

// relayEvent is the cross-node envelope published to redis/NATS so peers
// deliver to members connected elsewhere. Source filters out our own echo.
type relayEvent struct {
	Source  string          `json:"source"`
	Message dto.MessageView `json:"message"`
	SentAt  time.Time       `json:"sent_at"`
}

// NewRealtimeService creates the fanout router. redisClient and natsConn may
// be nil for single-node deployments.
func NewRealtimeService(redisClient *redis.Client, channelBase string, natsConn *nats.Conn, logger zerolog.Logger) RealtimeService {
	stream := ""
	subject := ""
	if channelBase != "" {
		stream = channelBase + ":events"
		subject = strings.ReplaceAll(channelBase, ":", ".") + ".events"
	}

	return &realtimeService{
		registry: &connectionRegistry{
			users: make(map[uint]map[*realtimeClient]struct{}),
			rooms: make(map[uint]map[*realtimeClient]struct{}),
			log:   logger.With().Str("component", "connection_registry").Logger(),
		},
		redis:       redisClient,
		redisStream: stream,
		nats:        natsConn,
		natsSubject: subject,
		logger:      logger.With().Str("component", "realtime_service").Logger(),
		nodeID:      uuid.NewString(),
	}
}

func (s *realtimeService) Start(ctx context.Context) {
	if s.redis != nil && s.redisStream != "" {
		go s.consumeRedis(ctx)
	}
	if s.nats != nil && s.natsSubject != "" {
		go s.consumeNATS(ctx)
	}
}

func (s *realtimeService) ServeConnection(conn *websocket.Conn, opts RealtimeConnectionOptions) {
	if opts.Context == nil {
		opts.Context = context.Background()
	}

	client := &realtimeClient{
		conn:    conn,
		send:    make(chan dto.ServerEvent, realtimeSendBufferSize),
		options: opts,
		service: s,
		rooms:   make(map[uint]struct{}),
		closed:  make(chan struct{}),
	}

	observability.RealtimeConnectionsActive().Inc()
	defer observability.RealtimeConnectionsActive().Dec()

	go client.writer()
	client.reader()
}

func (s *realtimeService) handleClientEvent(client *realtimeClient, event dto.ClientEvent) {
	switch event.Event {
	case dto.EventSetup:
		s.handleSetup(client, event)
	case dto.EventJoinChat:
		s.handleJoinChat(client, event)
	case dto.EventTyping, dto.EventStopTyping:
		s.handleTyping(client, event)
	case dto.EventNewMessage:
		s.handleNewMessage(client, event)
	default:
		client.push(dto.ServerEvent{Event: dto.EventError, Error: "unknown event"})
	}
}

// handleSetup binds the connection to the caller's personal channel. The
// identity from the upgrade JWT is authoritative; a mismatching setup
// payload is rejected rather than trusted.
func (s *realtimeService) handleSetup(client *realtimeClient, event dto.ClientEvent) {
	if event.UserID != 0 && event.UserID != client.options.UserID {
		client.push(dto.ServerEvent{Event: dto.EventError, Error: "setup identity mismatch"})
		return
	}

	s.registry.bindUser(client)
	client.push(dto.ServerEvent{Event: dto.EventConnected})
}

// handleJoinChat scopes the connection into a room for the typing relay.
// Message delivery stays on the personal channel; joining emits nothing.
func (s *realtimeService) handleJoinChat(client *realtimeClient, event dto.ClientEvent) {
	if event.ChatID == 0 {
		client.push(dto.ServerEvent{Event: dto.EventError, Error: "chatId is required"})
		return
	}

	s.registry.joinRoom(client, event.ChatID)
}

// handleTyping relays the typing indicator to the other connections joined
// to the room. The emitting connection never receives its own echo. The 3s
// auto-stop debounce lives in the client; the server only relays.
func (s *realtimeService) handleTyping(client *realtimeClient, event dto.ClientEvent) {
	if event.ChatID == 0 {
		client.push(dto.ServerEvent{Event: dto.EventError, Error: "chatId is required"})
		return
	}

	s.registry.broadcastRoom(event.ChatID, client, dto.ServerEvent{Event: event.Event, ChatID: event.ChatID})
}

// handleNewMessage fans a persisted message out to the personal channel of
// every chat member except the sender. Offline members are silently skipped;
// delivery is best effort.
func (s *realtimeService) handleNewMessage(client *realtimeClient, event dto.ClientEvent) {
	if event.Message == nil {
		client.push(dto.ServerEvent{Event: dto.EventError, Error: "message payload is required"})
		return
	}
	if event.Message.Sender.ID != client.options.UserID {
		client.push(dto.ServerEvent{Event: dto.EventError, Error: "message sender mismatch"})
		return
	}

	s.fanout(*event.Message)
	if err := s.publish(client.options.Context, *event.Message); err != nil {
		s.logger.Warn().Err(err).Msg("failed to publish realtime event to peers")
	}
}

func (s *realtimeService) fanout(message dto.MessageView) {
	delivered := 0
	for _, member := range message.Chat.Users {
		if member.ID == message.Sender.ID {
			continue
		}
		delivered += s.registry.sendToUser(member.ID, dto.ServerEvent{
			Event:   dto.EventMessageReceived,
			ChatID:  message.Chat.ID,
			Message: &message,
		})
	}
	observability.RealtimeEventsDeliveredTotal().Add(float64(delivered))
}

func (s *realtimeService) publish(ctx context.Context, message dto.MessageView) error {
	if (s.redis == nil || s.redisStream == "") && (s.nats == nil || s.natsSubject == "") {
		return nil
	}

	payload, err := json.Marshal(relayEvent{
		Source:  s.nodeID,
		Message: message,
		SentAt:  time.Now().UTC(),
	})
	if err != nil {
		return err
	}

	if s.redis != nil && s.redisStream != "" {
		if err := s.redis.Publish(ctx, s.redisStream, payload).Err(); err != nil {
			return err
		}
	}

	if s.nats != nil && s.natsSubject != "" {
		if err := s.nats.Publish(s.natsSubject, payload); err != nil {
			return err
		}
	}

	return nil
}

func (s *realtimeService) consumeRedis(ctx context.Context) {
	pubsub := s.redis.Subscribe(ctx, s.redisStream)
	defer func() {
		_ = pubsub.Close()
	}()

	for {
		msg, err := pubsub.ReceiveMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			s.logger.Error().Err(err).Msg("realtime redis subscription closed")
			return
		}
		s.handleRelay([]byte(msg.Payload))
	}
}

func (s *realtimeService) consumeNATS(ctx context.Context) {
	sub, err := s.nats.QueueSubscribe(s.natsSubject, "chatwave-realtime", func(msg *nats.Msg) {
		s.handleRelay(msg.Data)
	})
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to subscribe to nats realtime subject")
		return
	}

	go func() {
		<-ctx.Done()
		if err := sub.Drain(); err != nil {
			s.logger.Warn().Err(err).Msg("failed to drain realtime nats subscription")
		}
	}()
}

func (s *realtimeService) handleRelay(data []byte) {
	var event relayEvent
	if err := json.Unmarshal(data, &event); err != nil {
		s.logger.Warn().Err(err).Msg("invalid realtime relay payload")
		return
	}

	if event.Source == s.nodeID {
		return
	}

	s.fanout(event.Message)
}

func (r *connectionRegistry) bindUser(client *realtimeClient) {
	client.mu.Lock()
	alreadyBound := client.bound
	client.bound = true
	client.mu.Unlock()
	if alreadyBound {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	userID := client.options.UserID
	if _, exists := r.users[userID]; !exists {
		r.users[userID] = make(map[*realtimeClient]struct{})
	}
	r.users[userID][client] = struct{}{}
	r.log.Debug().Uint("user_id", userID).Msg("connection bound to personal channel")
}

func (r *connectionRegistry) joinRoom(client *realtimeClient, chatID uint) {
	client.mu.Lock()
	client.rooms[chatID] = struct{}{}
	client.mu.Unlock()

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.rooms[chatID]; !exists {
		r.rooms[chatID] = make(map[*realtimeClient]struct{})
	}
	r.rooms[chatID][client] = struct{}{}
	r.log.Debug().Uint("user_id", client.options.UserID).Uint("chat_id", chatID).Msg("connection joined chat room")
}

func (r *connectionRegistry) unregister(client *realtimeClient) {
	r.mu.Lock()
	defer r.mu.Unlock()

	userID := client.options.UserID
	if clients, ok := r.users[userID]; ok {
		delete(clients, client)
		if len(clients) == 0 {
			delete(r.users, userID)
		}
	}

	client.mu.Lock()
	joined := make([]uint, 0, len(client.rooms))
	for chatID := range client.rooms {
		joined = append(joined, chatID)
	}
	client.mu.Unlock()

	for _, chatID := range joined {
		if clients, ok := r.rooms[chatID]; ok {
			delete(clients, client)
			if len(clients) == 0 {
				delete(r.rooms, chatID)
			}
		}
	}

	r.log.Debug().Uint("user_id", userID).Msg("connection unregistered")
}

// sendToUser pushes the event to every live connection of the user and
// returns how many accepted it. No connections means the member is offline
// and the event is dropped without error.
func (r *connectionRegistry) sendToUser(userID uint, event dto.ServerEvent) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	delivered := 0
	for client := range r.users[userID] {
		if client.push(event) {
			delivered++
		}
	}
	return delivered
}

func (r *connectionRegistry) broadcastRoom(chatID uint, exclude *realtimeClient, event dto.ServerEvent) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for client := range r.rooms[chatID] {
		if client == exclude {
			continue
		}
		client.push(event)
	}
}

// push enqueues an event without blocking; a full buffer drops the event and
// counts it, which keeps one slow consumer from stalling the fanout.
func (c *realtimeClient) push(event dto.ServerEvent) bool {
	select {
	case c.send <- event:
		return true
	default:
		observability.RealtimeEventsDroppedTotal().Inc()
		c.service.logger.Warn().Uint("user_id", c.options.UserID).Str("event", event.Event).Msg("dropping event for slow connection")
		return false
	}
}

func (c *realtimeClient) reader() {
	defer c.close()

	_ = c.conn.SetReadDeadline(time.Now().Add(realtimeReadTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(realtimeReadTimeout))
	})

	for {
		var event dto.ClientEvent
		if err := c.conn.ReadJSON(&event); err != nil {
			c.service.logger.Debug().Err(err).Uint("user_id", c.options.UserID).Msg("realtime read loop ended")
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(realtimeReadTimeout))

		c.service.handleClientEvent(c, event)
	}
}

func (c *realtimeClient) writer() {
	defer c.close()

	ticker := time.NewTicker(realtimePingInterval)
	defer ticker.Stop()

	for {
		select {
		case event, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.conn.WriteJSON(event); err != nil {
				c.service.logger.Debug().Err(err).Msg("realtime write loop terminated")
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteMessage(websocket.PingMessage, []byte("keepalive")); err != nil {
				c.service.logger.Debug().Err(err).Msg("realtime ping failed")
				return
			}
		case <-c.closed:
			return
		}
	}
}

func (c *realtimeClient) close() {
	c.once.Do(func() {
		close(c.closed)
		c.service.registry.unregister(c)
		_ = c.conn.Close()
	})
}
