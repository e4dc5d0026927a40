// Package protocol owns the driver-facing contract shared by every layer.
//
// Ownership boundary:
// - driver status taxonomy
// - property value variant
// - wire primitives live in frame and spinel subpackages
package protocol
