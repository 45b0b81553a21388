package services

import (
	"context"
	"fmt"
	"io"
	"strings"

	"electroshop_backend/internal/email"
	"electroshop_backend/internal/storage"
)

const receiptContentType = "text/html; charset=utf-8"

// ReceiptArchive хранит html-квитанции оплаченных заказов.
// Ключ: receipts/<order_id>/<correlation_ref>.html
type ReceiptArchive struct {
	store    storage.Storage
	renderer *email.TemplateManager
}

// NewReceiptArchive возвращает nil, если хранилище не настроено
func NewReceiptArchive(store storage.Storage) *ReceiptArchive {
	if store == nil {
		return nil
	}
	return &ReceiptArchive{store: store, renderer: email.NewTemplateManager()}
}

func receiptKey(orderID, ref string) string {
	return fmt.Sprintf("receipts/%s/%s.html", orderID, ref)
}

// Store рендерит и сохраняет квитанцию, возвращает ее адрес
func (a *ReceiptArchive) Store(ctx context.Context, r email.Receipt) (string, error) {
	body, err := a.renderer.RenderReceipt(r)
	if err != nil {
		return "", err
	}

	key := receiptKey(r.OrderID, r.TransactionID)
	if err := a.store.Save(ctx, key, strings.NewReader(body), receiptContentType); err != nil {
		return "", err
	}
	return a.store.GetURL(ctx, key)
}

// Open - сохраненная квитанция или storage.ErrNotFound
func (a *ReceiptArchive) Open(ctx context.Context, orderID, ref string) (io.ReadCloser, error) {
	return a.store.Get(ctx, receiptKey(orderID, ref))
}
