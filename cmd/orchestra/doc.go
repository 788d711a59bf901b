// Command orchestra dispatches markdown task files to a chat-completion
// endpoint and files them by outcome.
//
// "orchestra run" processes the queued directory once; "orchestra start"
// keeps running, rescanning on a poll interval and when files appear. The
// queue subcommands inspect and edit task files directly, so they work with
// or without a running daemon.
package main
