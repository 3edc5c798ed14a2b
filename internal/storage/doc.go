// Package storage is the relay's durable key-value store.
//
// It holds small pieces of state that must survive restarts: the "last
// notification" watermark, sound settings and the snooze deadline. It also
// keeps a bounded log of delivered notifications for operators.
package storage
