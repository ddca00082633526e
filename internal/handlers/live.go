package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	nethttp "net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"social-service/internal/live"
	"social-service/internal/services"
)

const (
	liveSendBuf      = 64
	liveMaxFrameSize = 16 << 10
	liveWriteTimeout = 10 * time.Second
	liveReadTimeout  = 60 * time.Second
	livePingInterval = 30 * time.Second
)

// LiveQueries are the services whose reads can be watched over /ws/live.
type LiveQueries struct {
	Users     *services.UserService
	Friends   *services.FriendService
	Messages  *services.MessageService
	Directory *services.DirectoryService
}

// LiveHandler serves GET /ws/live. Each subscribe frame registers a live
// query and every new result is pushed as a result frame.
type LiveHandler struct {
	registry *live.Registry
	queries  LiveQueries
	upgrader websocket.Upgrader
	log      *zap.Logger
}

// NewLiveHandler creates the websocket handler. An empty allowedOrigins
// permits all origins.
func NewLiveHandler(registry *live.Registry, queries LiveQueries, allowedOrigins []string, log *zap.Logger) *LiveHandler {
	h := &LiveHandler{registry: registry, queries: queries, log: log}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *nethttp.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, o := range allowedOrigins {
				if o == origin {
					return true
				}
			}
			return false
		},
	}
	return h
}

type liveArgs struct {
	UserID   int64  `json:"user_id"`
	Term     string `json:"term"`
	Name     string `json:"name"`
	Password string `json:"password"`
}

type clientFrame struct {
	Type  string   `json:"type"`
	ID    string   `json:"id"`
	Query string   `json:"query"`
	Args  liveArgs `json:"args"`
}

type serverFrame struct {
	Type    string `json:"type"`
	ID      string `json:"id,omitempty"`
	Version uint64 `json:"version,omitempty"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

func (h *LiveHandler) Serve(c *gin.Context) {
	userID := userIDFromContext(c)
	if userID == nil {
		c.JSON(nethttp.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("ws upgrade failed", zap.Error(err))
		return
	}

	ctx, cancel := context.WithCancel(context.WithoutCancel(c.Request.Context()))
	defer cancel()

	s := &liveSession{
		h:      h,
		userID: *userID,
		conn:   conn,
		send:   make(chan serverFrame, liveSendBuf),
		subs:   map[string]context.CancelFunc{},
		log:    h.log.With(zap.Int64("user_id", *userID)),
	}
	go s.writePump(ctx)
	s.readPump(ctx)
}

// query resolves a named read to its live form for userID.
func (h *LiveHandler) query(name string, args liveArgs, userID int64) (live.Query, error) {
	switch name {
	case "getUser":
		id := args.UserID
		if id == 0 {
			id = userID
		}
		return h.queries.Users.UserQuery(id), nil
	case "login":
		return h.queries.Users.LoginQuery(args.Name, args.Password), nil
	case "searchUsers":
		return h.queries.Directory.SearchQuery(args.Term, userID), nil
	case "getFriendRequests":
		return h.queries.Friends.FriendRequestsQuery(userID), nil
	case "getFriends":
		return h.queries.Friends.FriendsQuery(userID), nil
	case "getMessages":
		if args.UserID == 0 {
			return nil, errors.New("args.user_id is required")
		}
		return h.queries.Messages.MessagesQuery(userID, args.UserID), nil
	default:
		return nil, fmt.Errorf("unknown query %q", name)
	}
}

type liveSession struct {
	h      *LiveHandler
	userID int64
	conn   *websocket.Conn
	send   chan serverFrame
	subs   map[string]context.CancelFunc // owned by readPump
	log    *zap.Logger
}

func (s *liveSession) readPump(ctx context.Context) {
	defer func() {
		for _, cancel := range s.subs {
			cancel()
		}
	}()

	s.conn.SetReadLimit(liveMaxFrameSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(liveReadTimeout))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(liveReadTimeout))
	})

	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseNormalClosure,
				websocket.CloseNoStatusReceived) {
				s.log.Warn("ws unexpected close", zap.Error(err))
			}
			return
		}

		var frame clientFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			s.enqueue(ctx, serverFrame{Type: "error", Error: "malformed frame"})
			continue
		}
		s.handle(ctx, frame)
	}
}

func (s *liveSession) handle(ctx context.Context, frame clientFrame) {
	switch frame.Type {
	case "subscribe":
		if frame.ID == "" {
			s.enqueue(ctx, serverFrame{Type: "error", Error: "subscription id is required"})
			return
		}
		if _, exists := s.subs[frame.ID]; exists {
			s.enqueue(ctx, serverFrame{Type: "error", ID: frame.ID, Error: "subscription id already in use"})
			return
		}
		q, err := s.h.query(frame.Query, frame.Args, s.userID)
		if err != nil {
			s.enqueue(ctx, serverFrame{Type: "error", ID: frame.ID, Error: err.Error()})
			return
		}

		subCtx, cancel := context.WithCancel(ctx)
		sub, err := s.h.registry.Watch(subCtx, q)
		if err != nil {
			cancel()
			s.log.Warn("live watch failed", zap.String("query", frame.Query), zap.Error(err))
			s.enqueue(ctx, serverFrame{Type: "error", ID: frame.ID, Error: "internal error"})
			return
		}
		s.subs[frame.ID] = cancel
		go s.forward(subCtx, frame.ID, sub)

	case "unsubscribe":
		if cancel, ok := s.subs[frame.ID]; ok {
			cancel()
			delete(s.subs, frame.ID)
		}

	default:
		s.enqueue(ctx, serverFrame{Type: "error", ID: frame.ID, Error: "unknown frame type"})
	}
}

func (s *liveSession) forward(ctx context.Context, id string, sub *live.Subscription) {
	for snap := range sub.Updates() {
		frame := serverFrame{Type: "result", ID: id, Version: snap.Version, Data: snap.Result}
		if snap.Err != nil {
			_, msg := errorResponse(snap.Err)
			frame = serverFrame{Type: "error", ID: id, Version: snap.Version, Error: msg}
		}
		if !s.enqueue(ctx, frame) {
			return
		}
	}
}

func (s *liveSession) enqueue(ctx context.Context, frame serverFrame) bool {
	select {
	case s.send <- frame:
		return true
	case <-ctx.Done():
		return false
	}
}

// writePump is the only writer on the connection.
func (s *liveSession) writePump(ctx context.Context) {
	ticker := time.NewTicker(livePingInterval)
	defer ticker.Stop()
	defer s.conn.Close()

	for {
		select {
		case frame := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(liveWriteTimeout))
			if err := s.conn.WriteJSON(frame); err != nil {
				s.log.Warn("ws write error", zap.Error(err))
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(liveWriteTimeout))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-ctx.Done():
			_ = s.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}
