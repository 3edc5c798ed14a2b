// Package delivery owns the notification watermark and schedules pushes for
// display at a fixed cadence.
//
// A batch is planned into an explicit list of (push, delay) items. Each item
// gets its own timer from a Clock; at fire time the item is re-checked
// against snooze and visibility before it reaches the Sink. Displaying a
// push newer than the watermark captured at schedule time advances the
// watermark and writes it through to the Store.
//
// Batches are independent. Spacing holds within a batch; overlapping
// batches are not ordered against each other.
package delivery
