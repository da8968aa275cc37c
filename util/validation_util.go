// util/validation_util.go

package util

import (
	"fmt"
	"strings"

	sync_errors "github.com/mitselek/esmuseum-map-app-sub006/errors"
)

// WebhookPayload is the body the backend posts on entity changes.
type WebhookPayload struct {
	DB     string `json:"db"`
	Plugin string `json:"plugin"`
	Entity struct {
		ID string `json:"_id"`
	} `json:"entity"`
	Token string `json:"token"`
}

type ValidationUtil struct {
	database string
}

// NewValidationUtil validates payloads for database; an empty database
// accepts any.
func NewValidationUtil(database string) *ValidationUtil {
	return &ValidationUtil{database: database}
}

func (v *ValidationUtil) ValidateWebhookPayload(payload WebhookPayload) error {
	if strings.TrimSpace(payload.Entity.ID) == "" {
		return fmt.Errorf("%w: entity._id is required", sync_errors.ErrMalformedPayload)
	}
	if strings.ContainsAny(payload.Entity.ID, "/?# ") {
		return fmt.Errorf("%w: entity._id %q is not an entity id", sync_errors.ErrMalformedPayload, payload.Entity.ID)
	}
	if strings.TrimSpace(payload.Token) == "" {
		return fmt.Errorf("%w: token is required", sync_errors.ErrMalformedPayload)
	}
	if v.database != "" && payload.DB != "" && payload.DB != v.database {
		return fmt.Errorf("%w: got %q", sync_errors.ErrDatabaseMismatch, payload.DB)
	}
	return nil
}
