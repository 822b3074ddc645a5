// Package audit implements async dispatch of session lifecycle events.
//
// [Sink] consumes events (channel, JSON lines, no-op). [Dispatcher] relays
// events to a sink from a single goroutine, either dropping or blocking when
// its buffer is full. Lost events are counted per event type and logged with
// the session handle and transfer method they carried. The engine decides which events exist; this package only
// buffers and delivers them.
package audit
