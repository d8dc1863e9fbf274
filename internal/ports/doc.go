// Package ports defines the interfaces (ports) that connect the application
// layer to infrastructure adapters.
//
// Ports are the boundaries between the session coordinator and the outside
// world. They state what the coordinator needs from devices and storage
// without saying how those needs are met.
//
// # Port Interfaces
//
//   - [Link]: commands devices and delivers their notifications
//   - [SessionSink]: persists one assembled session
//   - [Logger]: structured logging abstraction
//   - [HTTPClient]: HTTP request abstraction for dependency injection
//
// # Usage
//
// The application layer (internal/app) depends only on these interfaces.
// Adapters (internal/adapters, internal/link) implement them over MQTT,
// serial gateways, files, HTTP, SQLite and InfluxDB.
package ports
