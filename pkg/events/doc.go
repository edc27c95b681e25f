// Package events defines the raw interaction event model consumed by the
// observation pipeline and the processed event shapes it publishes.
//
// Raw events form a closed set of variants (mouse, keyboard, window focus,
// source fault) delivered by an EventSource. Adapters for real OS hooks live
// outside this module; ScriptSource provides a deterministic in-process
// source for tests and replay.
package events
