package chat

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	myMiddleware "market-chat/internal/middleware"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all for now (Dev mode)
	},
}

// ProductLookup is what we need from the product service. Flat returns
// keep the packages loosely coupled.
type ProductLookup interface {
	GetProductWithSeller(ctx context.Context, productID string) (sellerID int, sellerUsername, productName string, err error)
}

type Handler struct {
	registry Registry
	repo     *Repository
	products ProductLookup
	users    RecipientResolver
	log      *zap.SugaredLogger
}

func NewHandler(registry Registry, repo *Repository, products ProductLookup, users RecipientResolver, log *zap.SugaredLogger) *Handler {
	return &Handler{
		registry: registry,
		repo:     repo,
		products: products,
		users:    users,
		log:      log,
	}
}

// ServeWs opens a product chat room connection. Rejections happen
// before the upgrade, so a bad handshake terminates with an HTTP status
// and never produces a websocket frame or any room state.
func (h *Handler) ServeWs(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value(myMiddleware.UserKey).(int)
	username, ok2 := r.Context().Value(myMiddleware.UsernameKey).(string)
	if !ok || !ok2 {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	productID := chi.URLParam(r, "productID")
	sellerID, sellerUsername, _, err := h.products.GetProductWithSeller(r.Context(), productID)
	if err != nil {
		http.Error(w, "product not found", http.StatusNotFound)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warnw("websocket upgrade failed", "err", err)
		return
	}

	product := ProductContext{
		ID:             productID,
		SellerID:       sellerID,
		SellerUsername: sellerUsername,
	}
	principal := Principal{ID: userID, Username: username}

	groupKey := GroupKey(RoomKey(productID, userID, sellerID))
	client := newClient(conn, h.registry, groupKey, h.log)
	client.session = NewSession(principal, product, h.registry, h.repo, h.users, client, h.log)

	h.registry.Join(groupKey, client)
	h.log.Infow("chat connection opened", "group", groupKey, "user", username)

	go client.writePump()
	go client.readPump()
}

// GetChatHistory serves the paginated read path for a product's room.
func (h *Handler) GetChatHistory(w http.ResponseWriter, r *http.Request) {
	productID := chi.URLParam(r, "productID")

	_, _, productName, err := h.products.GetProductWithSeller(r.Context(), productID)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "Product not found."})
		return
	}

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("page_size"))
	if pageSize < 1 {
		pageSize = 5
	}
	if pageSize > 50 {
		pageSize = 50
	}

	messages, err := h.repo.ListForProduct(r.Context(), productID, pageSize, (page-1)*pageSize)
	if err != nil {
		h.log.Errorw("history query failed", "product", productID, "err", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "An error occurred retrieving chat messages."})
		return
	}
	count, err := h.repo.CountForProduct(r.Context(), productID)
	if err != nil {
		h.log.Errorw("history count failed", "product", productID, "err", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "An error occurred retrieving chat messages."})
		return
	}

	if messages == nil {
		messages = []HistoryMessage{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"count":     count,
		"page":      page,
		"page_size": pageSize,
		"product":   productName,
		"messages":  messages,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
