package discordia

import "context"

// Plugin extends bot behavior through lifecycle hooks, without touching
// the gateway client directly. Hooks are called synchronously on the
// event path; a hook error is logged and suppressed - it never interrupts
// event processing or later hooks.
type Plugin interface {
	// Name identifies the plugin in logs
	Name() string

	// OnReady is called once the gateway connection is up and initial
	// guild discovery has completed
	OnReady(ctx context.Context, bot *Discordia) error

	// OnMessage is called for every inbound message, before the handler
	// chain is evaluated
	OnMessage(ctx context.Context, mc *MessageContext) error
}
