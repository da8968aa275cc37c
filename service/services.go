// service/services.go
package service

import (
	"github.com/mitselek/esmuseum-map-app-sub006/backend"
	"github.com/mitselek/esmuseum-map-app-sub006/config"
	"github.com/mitselek/esmuseum-map-app-sub006/resolver"
)

type Services struct {
	Resolvers *resolver.Registry
	Sync      *PermissionSyncService
}

func InitializeServices(client *backend.Client, cfg *config.Configuration) (*Services, error) {
	resolvers := resolver.NewRegistry(
		resolver.NewStudentAddedResolver(client, cfg.Entity),
		resolver.NewTaskAssignedResolver(client, cfg.Entity),
	)

	services := &Services{
		Resolvers: resolvers,
		Sync:      NewPermissionSyncService(resolvers, client, cfg.Queue.GrantConcurrency),
	}

	return services, nil
}
