package discordia

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyContext indicates an LLM call was attempted with no
	// conversation context.
	ErrEmptyContext = errors.New("no context messages provided")

	// ErrReconcileInProgress indicates a reconciliation pass was requested
	// while a previous pass is still running.
	ErrReconcileInProgress = errors.New("reconciliation already in progress")
)

// ConfigurationError indicates invalid settings were provided, either
// via the environment/config file or programmatically.
type ConfigurationError struct {
	Field   string
	Message string
	Err     error
}

func (e ConfigurationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("invalid configuration (%s): %s", e.Field, e.Message)
	}
	return fmt.Sprintf("invalid configuration: %s", e.Message)
}

func (e ConfigurationError) Unwrap() error {
	return e.Err
}

// ReferentialIntegrityError indicates an entity save referenced another
// entity (by ID) that isn't present in the store.
type ReferentialIntegrityError struct {
	// Kind is the entity kind being saved (ex: "message")
	Kind string

	// ID is the ID of the entity being saved
	ID string

	// Field names the foreign key that failed to resolve (ex: "author_id")
	Field string

	// Ref is the unresolved ID the field pointed at
	Ref string
}

func (e ReferentialIntegrityError) Error() string {
	return fmt.Sprintf(
		"cannot save %s %s: %s references unknown entity %s",
		e.Kind,
		e.ID,
		e.Field,
		e.Ref,
	)
}

// EntityNotFoundError indicates a by-name lookup missed. This is distinct
// from the store's get-by-ID contract, where absence is an expected state
// rather than an error - a by-name lookup means the caller expected the
// entity to exist.
type EntityNotFoundError struct {
	Kind     string
	Name     string
	ServerID string
}

func (e EntityNotFoundError) Error() string {
	return fmt.Sprintf(
		"%s %q not found in server %s",
		e.Kind,
		e.Name,
		e.ServerID,
	)
}

// DiscordAPIError indicates a Discord gateway/REST call failed.
type DiscordAPIError struct {
	Operation string
	Err       error
}

func (e DiscordAPIError) Error() string {
	return fmt.Sprintf("discord API call failed (%s): %v", e.Operation, e.Err)
}

func (e DiscordAPIError) Unwrap() error {
	return e.Err
}

// MessageSendError indicates reply delivery failed after the retry.
type MessageSendError struct {
	ChannelID string
	Err       error
}

func (e MessageSendError) Error() string {
	return fmt.Sprintf(
		"failed to send message to channel %s: %v",
		e.ChannelID,
		e.Err,
	)
}

func (e MessageSendError) Unwrap() error {
	return e.Err
}

// ContextTooLargeError indicates the LLM input exceeded the provider's
// context limit.
type ContextTooLargeError struct {
	MessageCount int
	Err          error
}

func (e ContextTooLargeError) Error() string {
	return fmt.Sprintf(
		"context exceeds model limits (%d messages): %v",
		e.MessageCount,
		e.Err,
	)
}

func (e ContextTooLargeError) Unwrap() error {
	return e.Err
}

// LLMAPIError indicates the LLM provider call failed for any reason other
// than an oversized context.
type LLMAPIError struct {
	Err error
}

func (e LLMAPIError) Error() string {
	return fmt.Sprintf("LLM provider call failed: %v", e.Err)
}

func (e LLMAPIError) Unwrap() error {
	return e.Err
}
