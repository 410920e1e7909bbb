package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"chat-hub/auth"
	"chat-hub/domain"
	"chat-hub/search"
	"chat-hub/services"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/cors"
)

type contextKey string

const userIDKey contextKey = "user_id"

// Handler exposes the messaging core over HTTP and websocket.
type Handler struct {
	log      *slog.Logger
	chat     services.IChatService
	accounts services.IAuthService
	issuer   *auth.TokenIssuer
	index    search.IMessageIndex
	upgrader websocket.Upgrader
}

func NewHandler(log *slog.Logger,
	chat services.IChatService,
	accounts services.IAuthService,
	issuer *auth.TokenIssuer,
	index search.IMessageIndex,
	allowedOrigins []string) *Handler {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		allowed[origin] = true
	}
	return &Handler{
		log:      log,
		chat:     chat,
		accounts: accounts,
		issuer:   issuer,
		index:    index,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || allowed["*"] || allowed[origin]
			},
		},
	}
}

// Router assembles the route table with CORS applied on top.
func (h *Handler) Router(allowedOrigins []string) http.Handler {
	router := mux.NewRouter()

	router.HandleFunc("/api/register", h.handleRegister).Methods(http.MethodPost)
	router.HandleFunc("/api/login", h.handleLogin).Methods(http.MethodPost)

	api := router.PathPrefix("/api").Subrouter()
	api.Use(h.authenticate)
	api.HandleFunc("/messages", h.handleSend).Methods(http.MethodPost)
	api.HandleFunc("/conversations/{peer}", h.handleConversation).Methods(http.MethodGet)
	api.HandleFunc("/group/messages", h.handleGroup).Methods(http.MethodGet)
	api.HandleFunc("/conversations/{peer}/read", h.handleMarkRead).Methods(http.MethodPost)
	api.HandleFunc("/messages/{id}/seen", h.handleMarkSeen).Methods(http.MethodPost)
	api.HandleFunc("/unread", h.handleUnread).Methods(http.MethodGet)
	api.HandleFunc("/online", h.handleOnline).Methods(http.MethodGet)
	api.HandleFunc("/search", h.handleSearch).Methods(http.MethodGet)

	router.HandleFunc("/ws", h.handleWS).Methods(http.MethodGet)

	return cors.New(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
	}).Handler(router)
}

// authenticate resolves the Bearer token and stores the user id in the
// request context.
func (h *Handler) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, err := h.identify(r)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid or expired token")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userIDKey, userID)))
	})
}

// identify accepts the token either as a Bearer header or, for websocket
// clients that cannot set headers, as a query parameter.
func (h *Handler) identify(r *http.Request) (string, error) {
	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	if token == "" {
		token = r.URL.Query().Get("token")
	}
	return h.issuer.Validate(token)
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req auth.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}

	token, err := h.accounts.Register(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"token": token})
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req auth.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}

	token, err := h.accounts.Login(req)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid email or password")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

func (h *Handler) handleSend(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ReceiverID string `json:"receiver_id"`
		ChatType   string `json:"chat_type"`
		Text       string `json:"text"`
		Image      []byte `json:"image"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}

	msg, err := h.chat.Send(r.Context(), domain.SendCommand{
		SenderID:   userID(r),
		ReceiverID: body.ReceiverID,
		ChatType:   domain.ChatType(body.ChatType),
		Text:       body.Text,
		Image:      body.Image,
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

func (h *Handler) handleConversation(w http.ResponseWriter, r *http.Request) {
	messages, cursor, err := h.chat.Conversation(r.Context(), domain.FetchCommand{
		ViewerID: userID(r),
		PeerID:   mux.Vars(r)["peer"],
		Cursor:   cursorParam(r),
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writePage(w, messages, cursor)
}

func (h *Handler) handleGroup(w http.ResponseWriter, r *http.Request) {
	messages, cursor, err := h.chat.GroupMessages(r.Context(), domain.FetchCommand{
		ViewerID: userID(r),
		Cursor:   cursorParam(r),
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writePage(w, messages, cursor)
}

func (h *Handler) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	err := h.chat.MarkRead(r.Context(), domain.MarkReadCommand{
		ViewerID: userID(r),
		PeerID:   mux.Vars(r)["peer"],
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleMarkSeen(w http.ResponseWriter, r *http.Request) {
	err := h.chat.MarkSeen(r.Context(), domain.MarkSeenCommand{
		MessageID: mux.Vars(r)["id"],
		ViewerID:  userID(r),
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleUnread(w http.ResponseWriter, r *http.Request) {
	counts, err := h.chat.UnreadCounts(r.Context(), userID(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"counts": counts})
}

func (h *Handler) handleOnline(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"online": h.chat.OnlineUsers()})
}

func (h *Handler) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := search.NewQuery(r.URL.Query().Get("q"))
	if query.Terms == "" {
		writeError(w, http.StatusBadRequest, "missing search terms")
		return
	}

	hits, total, err := h.index.Search(r.Context(), userID(r), query)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"hits": hits, "total": total})
}

// handleWS upgrades the connection, registers it and runs the read loop
// until the client goes away.
func (h *Handler) handleWS(w http.ResponseWriter, r *http.Request) {
	uid, err := h.identify(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid or expired token")
		return
	}

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("Websocket upgrade failed", "error", err)
		return
	}

	conn := newWSConn(uid, ws, h.log)
	connID := h.chat.Attach(uid, conn)
	h.log.Info("Websocket attached", "user_id", uid, "conn_id", connID)

	go conn.writePump()
	h.readPump(r.Context(), conn)

	h.chat.Detach(uid, connID)
	conn.Close()
	h.log.Info("Websocket detached", "user_id", uid, "conn_id", connID)
}

// readPump decodes client frames and routes them to the service layer.
// Frame errors are answered in-band, socket errors end the connection.
func (h *Handler) readPump(ctx context.Context, c *wsConn) {
	c.ws.SetReadLimit(maxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var frame ClientFrame
		if err := c.ws.ReadJSON(&frame); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Debug("Websocket read error", "user_id", c.userID, "error", err)
			}
			return
		}

		if err := h.applyFrame(ctx, c.userID, frame); err != nil {
			h.log.Debug("Client frame rejected", "user_id", c.userID, "type", frame.Type, "error", err)
		}
	}
}

func (h *Handler) applyFrame(ctx context.Context, uid string, frame ClientFrame) error {
	switch frame.Type {
	case "send":
		_, err := h.chat.Send(ctx, domain.SendCommand{
			SenderID:   uid,
			ReceiverID: frame.ReceiverID,
			ChatType:   domain.ChatType(frame.ChatType),
			Text:       frame.Text,
			Image:      frame.Image,
		})
		return err
	case "mark_read":
		return h.chat.MarkRead(ctx, domain.MarkReadCommand{ViewerID: uid, PeerID: frame.PeerID})
	case "mark_seen":
		return h.chat.MarkSeen(ctx, domain.MarkSeenCommand{MessageID: frame.MessageID, ViewerID: uid})
	default:
		return fmt.Errorf("unknown frame type %q", frame.Type)
	}
}

func userID(r *http.Request) string {
	uid, _ := r.Context().Value(userIDKey).(string)
	return uid
}

func cursorParam(r *http.Request) *string {
	if cursor := r.URL.Query().Get("cursor"); cursor != "" {
		return &cursor
	}
	return nil
}

func writePage(w http.ResponseWriter, messages []domain.Message, cursor *string) {
	writeJSON(w, http.StatusOK, map[string]any{"messages": messages, "next_cursor": cursor})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
