// Package notifier turns pushes into desktop notifications.
//
// # Presenters
//
// A Presenter is the OS primitive: it shows a notification and reports
// clicks. DBusPresenter talks to org.freedesktop.Notifications on the
// session bus; LogPresenter writes through the logger and is used when no
// bus is available.
//
// # Service
//
// Service is the sink the delivery queue calls. It builds the notification
// for a push, plays the configured sound, and remembers which push each
// notification id belongs to. Clicking a notification opens the push URL
// and, where appropriate, dismisses the push upstream.
//
// # History
//
// The service keeps a small in-memory history of recently shown
// notifications for the debug endpoint.
package notifier
