// Package server owns the device-side dispatch engine.
//
// Ownership boundary:
// - the static key→handler table and its lookup
// - the shared outbound sender and its bounded frame buffer
// - the automatic error-reply path
package server
