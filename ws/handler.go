package ws

import (
	"net/http"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // токен корреляции сам по себе является секретом
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// ServeWS обновляет соединение, подписывает клиента на изменения транзакции
// и только потом читает снимок статуса. Смена статуса между подпиской и снимком
// придет отдельным сообщением после снимка.
func (manager *WebSocketManager) ServeWS(w http.ResponseWriter, r *http.Request, transactionID string, snapshot func() (any, error)) error {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	client := newClient(manager, conn, transactionID)
	select {
	case manager.register <- client:
	case <-manager.done:
		conn.Close()
		return nil
	}

	if snapshot != nil {
		if err := client.writeSnapshot(snapshot); err != nil {
			select {
			case manager.unregister <- client:
			case <-manager.done:
			}
			conn.Close()
			return err
		}
	}

	go client.readPump()
	go client.writePump()
	return nil
}
