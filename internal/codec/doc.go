// Package codec decodes and encodes the sensor wire frame.
//
// A frame is exactly 221 bytes, little-endian:
//
//	[seq u8] 5 × ['A' ts:u32 'B' ax ay az:f32 'C' gx gy gz:f32 'D' mx my mz:f32]
//
// Decoding is pure and stateless. A marker mismatch anywhere rejects the
// whole frame; a sub-record whose floats contain NaN is dropped and decoding
// continues with the next sub-record.
package codec
