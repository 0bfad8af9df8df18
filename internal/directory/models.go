// Package directory stores the clinic's people: staff, pet owners and their
// pets. It also resolves reminder targets to deliverable recipients.
package directory

import (
	"time"

	"github.com/google/uuid"
)

// Target entity kinds a reminder record can point at.
const (
	KindAppointment = "appointment"
	KindPet         = "pet"
	KindOwner       = "owner"
)

// Staff is a clinic employee who can hold appointments.
type Staff struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Role      string    `json:"role"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// Owner is a pet owner, the recipient of reminders and invoices.
type Owner struct {
	ID               uuid.UUID `json:"id"`
	Name             string    `json:"name"`
	Email            string    `json:"email"`
	Phone            string    `json:"phone"`
	WhatsApp         string    `json:"whatsapp"`
	PreferredChannel string    `json:"preferred_channel"`
	CreatedAt        time.Time `json:"created_at"`
}

// Pet belongs to an owner; appointments for pet-requiring services reference one.
type Pet struct {
	ID        uuid.UUID `json:"id"`
	OwnerID   uuid.UUID `json:"owner_id"`
	Name      string    `json:"name"`
	Species   string    `json:"species"`
	Breed     string    `json:"breed"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// Recipient is a resolved reminder target with per-channel addresses. Empty
// fields mean the owner has no address on that channel.
type Recipient struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	WhatsApp string `json:"whatsapp"`
}
