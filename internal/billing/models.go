// Package billing materializes invoices for completed appointments. It is the
// only writer of the invoices table; the lifecycle signals it exactly once per
// completion and the store enforces at most one invoice per appointment.
package billing

import (
	"time"

	"github.com/google/uuid"
)

// InvoiceStatus tracks an invoice through its (currently minimal) lifecycle.
type InvoiceStatus string

const (
	StatusPending InvoiceStatus = "pending"
	StatusPaid    InvoiceStatus = "paid"
	StatusVoid    InvoiceStatus = "void"
)

// Invoice is the amount owed for one completed appointment. AmountCents is the
// service price captured at completion time; later catalog price changes do
// not touch issued invoices.
type Invoice struct {
	ID            uuid.UUID     `json:"id"`
	AppointmentID uuid.UUID     `json:"appointment_id"`
	OwnerID       uuid.UUID     `json:"owner_id"`
	AmountCents   int64         `json:"amount_cents"`
	Status        InvoiceStatus `json:"status"`
	IssuedAt      time.Time     `json:"issued_at"`
}
