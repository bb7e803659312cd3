package models

import "time"

// AuditLog is one append-only record of an administrative action. Writes
// are fire-and-forget; a failed audit write never fails the action itself.
type AuditLog struct {
	ID          uint   `gorm:"primarykey"`
	ActorID     uint   `gorm:"index;not null"`
	Action      string `gorm:"index;not null"`
	Description string
	CreatedAt   time.Time
}
