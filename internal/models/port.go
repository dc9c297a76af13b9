// Package models defines the domain types for portlight.
package models

import (
	"fmt"
	"strconv"
	"time"
)

// Labels used for synthesized records that have a browser connection but no
// attributable listener.
const (
	ExternalProject = "External/System"
	UnknownProcess  = "Unknown"
	UnknownUser     = "Unknown"
)

// Listener is a raw fact produced by the listener scan.
type Listener struct {
	Port    int    `json:"port"`
	PID     int32  `json:"pid"`
	Process string `json:"process"`
	User    string `json:"user"`
}

// Connection is an established TCP connection seen by the connection scan.
type Connection struct {
	Process    string `json:"process"`
	PID        int32  `json:"pid"`
	LocalPort  int    `json:"local_port"`
	RemoteAddr string `json:"remote_addr"`
	RemotePort int    `json:"remote_port"`
	Status     string `json:"status"`
}

// Identity keys a record in the canonical snapshot. Listener records use
// (PID, Port); synthesized external records carry PID 0.
type Identity struct {
	PID  int32
	Port int
}

// External reports whether the identity is port-only.
func (id Identity) External() bool {
	return id.PID == 0
}

// String renders the identity as "pid:port" or "external:port".
func (id Identity) String() string {
	if id.External() {
		return "external:" + strconv.Itoa(id.Port)
	}
	return fmt.Sprintf("%d:%d", id.PID, id.Port)
}

// PortRecord is the canonical per-identity state held by the registry.
type PortRecord struct {
	ID               Identity
	Port             int
	Process          string
	PID              int32
	User             string
	Title            string
	Project          string
	BrowserConnected bool
}

// URL returns the local address the record is reachable at.
func (r PortRecord) URL() string {
	return "http://localhost:" + strconv.Itoa(r.Port)
}

// DisplayName picks the most descriptive label available.
func (r PortRecord) DisplayName() string {
	switch {
	case r.Title != "":
		return r.Title
	case r.Project != "":
		return r.Project
	case r.Process != "":
		return r.Process
	default:
		return "Port " + strconv.Itoa(r.Port)
	}
}

// Subtitle is the secondary line shown under DisplayName.
func (r PortRecord) Subtitle() string {
	if r.ID.External() {
		return ExternalProject
	}
	if r.Title != "" && r.Project != "" {
		return r.Project
	}
	return r.Process
}

// Service projects the record into its consumer-facing form.
func (r PortRecord) Service() Service {
	return Service{
		ID:               r.ID.String(),
		DisplayName:      r.DisplayName(),
		URL:              r.URL(),
		Subtitle:         r.Subtitle(),
		Port:             r.Port,
		PID:              r.PID,
		Process:          r.Process,
		Project:          r.Project,
		Title:            r.Title,
		BrowserConnected: r.BrowserConnected,
	}
}

// Service is one entry of the published view.
type Service struct {
	ID               string `json:"id"`
	DisplayName      string `json:"display_name"`
	URL              string `json:"url"`
	Subtitle         string `json:"subtitle"`
	Port             int    `json:"port"`
	PID              int32  `json:"pid,omitempty"`
	Process          string `json:"process"`
	Project          string `json:"project,omitempty"`
	Title            string `json:"title,omitempty"`
	BrowserConnected bool   `json:"browser_connected"`
}

// View is the deduplicated, ordered list handed to consumers.
type View struct {
	Services  []Service `json:"services"`
	Version   uint64    `json:"version"`
	UpdatedAt time.Time `json:"updated_at"`
}
