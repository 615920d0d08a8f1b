// Package editor turns inferred variable descriptors into editor controls and
// converts submitted control input back into metadata values.
package editor
