// Package recovery implements guardian-weighted, time-delayed replacement of a
// protected signer identity.
//
// A Machine owns a Registry of weighted guardians, a ThresholdPolicy and a
// TimelockGate. Guardians open a single recovery request and approve it once
// the delay has elapsed; the approval that brings the accumulated weight to
// the threshold swaps the signer in the same call. The owner may cancel a
// pending request at any time.
//
// The package performs no locking and no I/O. Callers serialise operations,
// supply the current time, and persist State between calls. Every operation
// validates all preconditions before its first write, so a returned error
// always means the Machine is unchanged.
package recovery
