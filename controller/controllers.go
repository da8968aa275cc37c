// controller/controllers.go
package controller

import "github.com/mitselek/esmuseum-map-app-sub006/util"

type Controllers struct {
	Webhook *WebhookController
}

func InitializeControllers(q Enqueuer, database string) *Controllers {
	return &Controllers{
		Webhook: NewWebhookController(q, util.NewValidationUtil(database)),
	}
}
