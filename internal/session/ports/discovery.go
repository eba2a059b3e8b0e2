package ports

//go:generate mockgen -source=discovery.go -destination=mocks/discovery.go -package=mocks

import (
	"oddcert/internal/boundary"
	id "oddcert/pkg/domain"
)

// DiscoveryPort receives samples while an application is under observation.
type DiscoveryPort interface {
	Observe(appID id.ApplicationID, s boundary.Sample) bool
}
