package contacts

import "context"

// Contact is the minimal view of a contact the engine needs to dial it.
// Contact storage and CSV import are owned by the surrounding platform;
// the engine only reads.
type Contact struct {
	ContactID   string `json:"contact_id" db:"contact_id"`
	PhoneNumber string `json:"phone_number" db:"phone_number"`

	// TimeZone is an IANA zone name (e.g. "America/Chicago") used for
	// calling-hours evaluation in the contact's local time.
	TimeZone string `json:"time_zone" db:"time_zone"`
}

// Store is the read contract against the platform's contact storage.
type Store interface {
	// GetContactGroupMembers returns the members of a contact group in a
	// stable order. An unknown group returns ErrGroupNotFound.
	GetContactGroupMembers(ctx context.Context, groupID string) ([]Contact, error)
}

// DNCChecker answers Do-Not-Call membership. The DNC list itself is
// owned by the compliance screens; the engine only queries it.
type DNCChecker interface {
	IsOnDNC(ctx context.Context, phoneNumber string) (bool, error)
}
