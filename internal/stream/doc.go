// Package stream implements the live feed client.
//
// The client:
//   - Maintains one WebSocket connection to the game telemetry plugin
//   - Decodes pushed frames into the latest factory state
//   - Tracks connection health and latency
//   - Handles reconnection with exponential backoff
package stream
