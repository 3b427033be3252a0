// Package invoice holds the default invoice collaborator: a deterministic
// plain-document renderer. Production deployments swap in the real PDF
// renderer behind the same interface.
package invoice

import (
	"bytes"
	"fmt"

	"bookstore-payments/internal/service"
)

type Renderer struct{}

func NewRenderer() *Renderer {
	return &Renderer{}
}

func (r *Renderer) Render(data service.InvoiceData) ([]byte, error) {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "INVOICE %s\n", data.InvoiceNumber)
	fmt.Fprintf(&buf, "Date: %s\n", data.CreatedAt.UTC().Format("2006-01-02"))
	fmt.Fprintf(&buf, "Billed to: %s <%s>\n", data.BuyerName, data.BuyerEmail)
	fmt.Fprintf(&buf, "Sale type: %s\n", data.SaleType)
	fmt.Fprintf(&buf, "Paid via: %s", data.PaymentMethodLabel)
	if data.PaymentReference != "" {
		fmt.Fprintf(&buf, " (ref %s)", data.PaymentReference)
	}
	buf.WriteString("\n\n")

	for _, line := range data.Lines {
		fmt.Fprintf(&buf, "%4d x %-40s %10s %s\n", line.Quantity, line.Title, line.UnitPrice.StringFixed(2), data.Currency)
	}

	fmt.Fprintf(&buf, "\nTOTAL %s %s\n", data.Total.StringFixed(2), data.Currency)

	return buf.Bytes(), nil
}
