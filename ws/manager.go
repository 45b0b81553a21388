package ws

import (
	"context"
	"sync"

	"electroshop_backend/internal/dto"
	"electroshop_backend/internal/logger"
)

// WebSocketManager рассылает смены статуса транзакций подписчикам.
// Клиент подписывается на один токен корреляции.
type WebSocketManager struct {
	topics     map[string]map[*Client]struct{}
	register   chan *Client
	unregister chan *Client
	broadcast  chan dto.PaymentStatusUpdate
	done       chan struct{}
	mu         sync.RWMutex
}

func NewWebSocketManager() *WebSocketManager {
	return &WebSocketManager{
		topics:     make(map[string]map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan dto.PaymentStatusUpdate, 256),
		done:       make(chan struct{}),
	}
}

// Run обслуживает регистрацию и рассылку до отмены ctx
func (manager *WebSocketManager) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			close(manager.done)
			manager.closeAll()
			return

		case client := <-manager.register:
			manager.mu.Lock()
			subs, ok := manager.topics[client.TransactionID]
			if !ok {
				subs = make(map[*Client]struct{})
				manager.topics[client.TransactionID] = subs
			}
			subs[client] = struct{}{}
			manager.mu.Unlock()
			logger.Debug("WebSocket client subscribed", "client_id", client.ID, "correlation_id", client.TransactionID)

		case client := <-manager.unregister:
			manager.remove(client)

		case update := <-manager.broadcast:
			manager.deliver(update)
		}
	}
}

// Publish не блокирует: при переполненной очереди событие теряется,
// клиент увидит актуальный статус при следующем опросе
func (manager *WebSocketManager) Publish(update dto.PaymentStatusUpdate) {
	select {
	case manager.broadcast <- update:
	default:
		logger.Warn("WebSocket broadcast queue is full, dropping status update",
			"correlation_id", update.TransactionID,
			"status", update.Status,
		)
	}
}

func (manager *WebSocketManager) deliver(update dto.PaymentStatusUpdate) {
	manager.mu.RLock()
	var slow []*Client
	for client := range manager.topics[update.TransactionID] {
		select {
		case client.Send <- update:
		default:
			slow = append(slow, client)
		}
	}
	manager.mu.RUnlock()

	// Канал заполнен, клиент отключается
	for _, client := range slow {
		logger.Warn("WebSocket client is too slow, disconnecting", "client_id", client.ID)
		manager.remove(client)
	}
}

func (manager *WebSocketManager) remove(client *Client) {
	manager.mu.Lock()
	defer manager.mu.Unlock()

	subs, ok := manager.topics[client.TransactionID]
	if !ok {
		return
	}
	if _, ok := subs[client]; !ok {
		return
	}
	delete(subs, client)
	close(client.Send)
	if len(subs) == 0 {
		delete(manager.topics, client.TransactionID)
	}
	logger.Debug("WebSocket client unsubscribed", "client_id", client.ID, "correlation_id", client.TransactionID)
}

func (manager *WebSocketManager) closeAll() {
	manager.mu.Lock()
	defer manager.mu.Unlock()
	for ref, subs := range manager.topics {
		for client := range subs {
			close(client.Send)
		}
		delete(manager.topics, ref)
	}
}

// SubscriberCount - число подписчиков на транзакцию
func (manager *WebSocketManager) SubscriberCount(transactionID string) int {
	manager.mu.RLock()
	defer manager.mu.RUnlock()
	return len(manager.topics[transactionID])
}
