// model/notification.go
package model

import "time"

// TriggerKind names the backend event that produced a webhook notification.
type TriggerKind string

const (
	StudentAddedToClass TriggerKind = "student-added"
	TaskAssignedToClass TriggerKind = "task-assigned"
)

func (k TriggerKind) Valid() bool {
	return k == StudentAddedToClass || k == TaskAssignedToClass
}

// Credential is the decoded identity of the person whose edit triggered the
// webhook. Token is forwarded verbatim to the backend and never serialized.
type Credential struct {
	PrincipalID    string    `json:"principal_id"`
	PrincipalLabel string    `json:"principal_label"`
	ExpiresAt      time.Time `json:"expires_at"`
	Token          string    `json:"-"`
}

// Expired reports whether the credential is no longer usable at now.
func (c *Credential) Expired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}

// Remaining returns the credential's time-to-live at now, never negative.
func (c *Credential) Remaining(now time.Time) time.Duration {
	if d := c.ExpiresAt.Sub(now); d > 0 {
		return d
	}
	return 0
}

// WebhookNotification is one accepted inbound webhook, consumed once by the queue.
type WebhookNotification struct {
	SourceEntityID EntityID    `json:"source_entity_id"`
	TriggerKind    TriggerKind `json:"trigger_kind"`
	Credential     *Credential `json:"credential"`
	ReceivedAt     time.Time   `json:"received_at"`
}
