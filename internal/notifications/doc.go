// Package notifications pushes task outcomes to an ntfy topic.
//
// NewService returns a no-op implementation when no topic is configured, so
// callers publish unconditionally. Event selects the title, tags, and message
// template; Payload carries the values the template reads.
package notifications
