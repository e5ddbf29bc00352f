// Package hostmesh is a coordinator for peer-to-peer game hosting.
//
// # Overview
//
// Hostmesh tracks player-operated machines willing to host game zones,
// scores them by connection quality and hardware, and binds the best host
// to each zone through managed hosting sessions.
//
// The service consists of three main components:
//   - API Server: REST API for hosts, zones and sessions, plus a WebSocket
//     feed of session state changes for signaling relays
//   - Health Monitor: background loops that expire stale heartbeats and
//     clean up abandoned sessions
//   - Storage Layer: a Postgres-backed durable store plus Redis-backed
//     rate limit counters, shared by all replicas
//
// # Quick Start
//
//	# Start the coordinator
//	hostmesh server --config config.yaml
//
//	# Generate a host service token
//	hostmesh token host player-42-host
//
// All coordinator state lives in the shared stores, so any number of
// replicas can run behind a load balancer.
package hostmesh
