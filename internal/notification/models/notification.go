// Package models holds the in-app notification record.
package models

import (
	"time"

	id "limsd/pkg/domain"
)

// Notification is one inbox entry. Entries are immutable apart from the
// read marker.
type Notification struct {
	ID     id.NotificationID
	UserID id.UserID

	Kind    string
	Title   string
	Message string

	SampleID        id.SampleID
	InvestigationID id.InvestigationID

	Read      bool
	ReadAt    *time.Time
	CreatedAt time.Time
}

// MarkRead stamps the read marker. Idempotent.
func (n *Notification) MarkRead(now time.Time) {
	if n.Read {
		return
	}
	n.Read = true
	readAt := now
	n.ReadAt = &readAt
}
