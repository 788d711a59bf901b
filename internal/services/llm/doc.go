// Package llm submits task bodies to an OpenAI-compatible chat-completion
// endpoint (Open WebUI, Ollama, OpenRouter) and returns the response text.
//
// # Entry Points
//
// NewClient: construct a client from Config.
// Client.Submit: send one prompt with model and workspace, receive text.
// Client.HealthCheck: verify the endpoint answers.
// DecodeLLMJSON: pull a JSON object out of a chatty model reply.
//
// # Errors
//
// Every Submit failure is a *DispatchError whose Kind is timeout, connection,
// server, or invalid_response. Each kind wraps the matching services marker.
//
// # Retry Behaviour
//
// One attempt by default. With WithRetryMaxAttempts > 1 the client retries
// HTTP 408/429/5xx, empty replies, and non-timeout connection errors with
// exponential backoff. Timeouts and context cancellation are never retried.
package llm
