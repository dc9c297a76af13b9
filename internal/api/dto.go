package api

import (
	"time"

	"github.com/starford/portlight/internal/models"
)

// Service is a published service entry (aliased from the domain layer).
type Service = models.Service

// ServiceListResponse is the body of GET /api/services.
type ServiceListResponse struct {
	Services  []Service `json:"services" validate:"required"`
	Version   uint64    `json:"version" example:"12" validate:"required"`
	UpdatedAt time.Time `json:"updated_at" validate:"required"`
}

// AcceptedResponse acknowledges a command the monitor runs asynchronously.
type AcceptedResponse struct {
	Status string `json:"status" example:"accepted" validate:"required"`
	PID    int32  `json:"pid,omitempty" example:"4242"`
}

func listResponse(v models.View) ServiceListResponse {
	services := v.Services
	if services == nil {
		services = []Service{}
	}
	return ServiceListResponse{Services: services, Version: v.Version, UpdatedAt: v.UpdatedAt}
}
