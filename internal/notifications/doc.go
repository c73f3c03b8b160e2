// Package notifications delivers job outcomes via pluggable notifiers.
//
// The default implementation publishes to ntfy using the topic configured in
// config.toml and degrades to a no-op when notifications are disabled.
// Forward bridges the queue's global event feed to a Service so the daemon
// and one-shot runs announce finished jobs the same way.
package notifications
