// Package domain contains the core entities and value objects for motionsync.
//
// This package is the innermost layer. It has no dependencies on transports,
// storage or logging and holds only the sensor data model and its invariants.
//
// # Entities
//
//   - [SensorSample]: one inertial reading (device tick, accel, gyro, mag)
//   - [SlotID]: one of the four body-worn sensor positions
//   - [SessionPayload]: the assembled multi-device capture handed to a sink
//   - [Command]: a control byte written to a device's command channel
//
// # Wire constants
//
// Packet geometry (221-byte frames of 5 sub-records), the batch threshold of
// 21 packets and the slot limits are declared here so that the codec, the
// buffers and the coordinator agree on them.
package domain
