package email

import (
	"fmt"
	"html/template"
	"strings"
	"sync"
	"time"
)

const TemplatePaymentReceipt = "payment_receipt"

const paymentReceiptHTML = `<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; color: #222;">
  <h2>Payment received</h2>
  <p>Hello{{if .CustomerName}} {{.CustomerName}}{{end}},</p>
  <p>We have received your payment for order <b>{{.OrderID}}</b>.</p>
  <table cellpadding="6" style="border-collapse: collapse;">
    <tr><td>Amount</td><td><b>{{.Amount}} {{.Currency}}</b></td></tr>
    <tr><td>Method</td><td>{{.PaymentMethod}}</td></tr>
    <tr><td>Transaction</td><td>{{.TransactionID}}</td></tr>
    {{if .ProviderReceipt}}<tr><td>Receipt</td><td>{{.ProviderReceipt}}</td></tr>{{end}}
    <tr><td>Date</td><td>{{.PaidAt}}</td></tr>
  </table>
  <p>Your order is now being processed.</p>
</body>
</html>`

// TemplateManager хранит разобранные html-шаблоны писем
type TemplateManager struct {
	templates map[string]*template.Template
	mutex     sync.RWMutex
}

// NewTemplateManager создает менеджер со встроенными шаблонами
func NewTemplateManager() *TemplateManager {
	tm := &TemplateManager{
		templates: make(map[string]*template.Template),
	}
	if err := tm.AddTemplate(TemplatePaymentReceipt, paymentReceiptHTML); err != nil {
		panic(err)
	}
	return tm
}

// Render рендерит шаблон с данными
func (tm *TemplateManager) Render(templateName string, data TemplateData) (string, error) {
	tm.mutex.RLock()
	tpl, exists := tm.templates[templateName]
	tm.mutex.RUnlock()

	if !exists {
		return "", fmt.Errorf("template not found: %s", templateName)
	}

	var buf strings.Builder
	if err := tpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to execute template: %w", err)
	}

	return buf.String(), nil
}

// RenderReceipt - html квитанции; тот же документ уходит в письмо и в архив
func (tm *TemplateManager) RenderReceipt(r Receipt) (string, error) {
	return tm.Render(TemplatePaymentReceipt, TemplateData{
		"CustomerName":    r.CustomerName,
		"OrderID":         r.OrderID,
		"TransactionID":   r.TransactionID,
		"Amount":          r.Amount.StringFixed(2),
		"Currency":        r.Currency,
		"PaymentMethod":   r.PaymentMethod,
		"ProviderReceipt": r.ProviderReceipt,
		"PaidAt":          r.PaidAt.Format(time.RFC1123),
	})
}

// AddTemplate добавляет шаблон в менеджер
func (tm *TemplateManager) AddTemplate(name string, templateStr string) error {
	tpl, err := template.New(name).Parse(templateStr)
	if err != nil {
		return fmt.Errorf("failed to parse template: %w", err)
	}

	tm.mutex.Lock()
	tm.templates[name] = tpl
	tm.mutex.Unlock()

	return nil
}
