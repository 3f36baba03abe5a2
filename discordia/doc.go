// Package discordia implements a Discord bot that keeps a server's
// channel layout converged on a declarative template and responds to
// messages in generated log channels with LLM-backed replies.
//
// The bot observes the server through a discovery engine that mirrors
// categories and channels into an in-memory state store, expands the
// active ServerTemplate (including pattern-generated channels such as
// dated daily logs) and reconciles the difference by creating whatever
// is missing. Reconciliation is additive only: nothing is ever renamed,
// moved or deleted.
//
// Inbound messages are recorded in the state store and routed through a
// first-match handler chain; handlers backed by an OpenAI-compatible
// completion API reply in recognized log channels using recent channel
// history as conversation context.
package discordia
