// Package pipe moves audio bytes between processes through enlarged OS pipes.
//
// Relay copies a decoder's stdout into a transcoder's stdin in fixed chunks.
// Gate holds the player back until the transcoder output is mostly full.
package pipe

// DefaultCapacity is used when the system pipe limit cannot be read
const DefaultCapacity = 1 << 20
