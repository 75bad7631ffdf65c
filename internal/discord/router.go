package discord

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/soundboard/internal/observe"
)

// HandlerFunc is the signature for slash command handlers. ctx carries the
// command's span and deadline.
type HandlerFunc func(ctx context.Context, r Responder, i *discordgo.InteractionCreate)

// AutocompleteFunc is the signature for autocomplete handlers.
type AutocompleteFunc func(ctx context.Context, r Responder, i *discordgo.InteractionCreate)

// commandEntry stores a command definition along with its handler.
type commandEntry struct {
	command *discordgo.ApplicationCommand
	handler HandlerFunc
}

// RouterOption configures a [CommandRouter].
type RouterOption func(*CommandRouter)

// WithTimeout bounds every command handler. Zero disables the deadline.
func WithTimeout(d time.Duration) RouterOption {
	return func(r *CommandRouter) { r.timeout = d }
}

// WithMetrics sets the metrics that command durations are recorded to.
func WithMetrics(m *observe.Metrics) RouterOption {
	return func(r *CommandRouter) { r.metrics = m }
}

// CommandRouter dispatches Discord interactions to registered handlers.
type CommandRouter struct {
	mu           sync.RWMutex
	commands     map[string]commandEntry     // command name → entry
	order        []string                    // registration order, for ApplicationCommands
	autocomplete map[string]AutocompleteFunc // command name → handler

	timeout time.Duration
	metrics *observe.Metrics
}

// NewCommandRouter creates an empty router.
func NewCommandRouter(opts ...RouterOption) *CommandRouter {
	r := &CommandRouter{
		commands:     make(map[string]commandEntry),
		autocomplete: make(map[string]AutocompleteFunc),
	}
	for _, o := range opts {
		o(r)
	}
	if r.metrics == nil {
		r.metrics = observe.DefaultMetrics()
	}
	return r
}

// RegisterCommand registers a handler for a slash command. The cmd
// definition is used when registering commands with Discord.
func (r *CommandRouter) RegisterCommand(cmd *discordgo.ApplicationCommand, handler HandlerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.commands[cmd.Name]; !ok {
		r.order = append(r.order, cmd.Name)
	}
	r.commands[cmd.Name] = commandEntry{command: cmd, handler: handler}
}

// RegisterAutocomplete registers an autocomplete handler for a command.
func (r *CommandRouter) RegisterAutocomplete(name string, handler AutocompleteFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.autocomplete[name] = handler
}

// ApplicationCommands returns the command definitions in registration order
// for registration with the Discord API.
func (r *CommandRouter) ApplicationCommands() []*discordgo.ApplicationCommand {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cmds := make([]*discordgo.ApplicationCommand, 0, len(r.order))
	for _, name := range r.order {
		cmds = append(cmds, r.commands[name].command)
	}
	return cmds
}

// Handle dispatches an interaction to the appropriate handler.
// It matches the discordgo event handler signature through [Bot].
func (r *CommandRouter) Handle(resp Responder, i *discordgo.InteractionCreate) {
	switch i.Type {
	case discordgo.InteractionApplicationCommand:
		r.handleApplicationCommand(resp, i)

	case discordgo.InteractionApplicationCommandAutocomplete:
		r.handleAutocomplete(resp, i)

	default:
		slog.Debug("discord: unhandled interaction type", "type", i.Type)
	}
}

func (r *CommandRouter) handleApplicationCommand(resp Responder, i *discordgo.InteractionCreate) {
	name := i.ApplicationCommandData().Name

	r.mu.RLock()
	entry, ok := r.commands[name]
	r.mu.RUnlock()

	if !ok {
		slog.Warn("discord: unknown command", "name", name)
		RespondEphemeral(resp, i, "Unknown command.")
		return
	}

	ctx, cancel := r.commandContext()
	defer cancel()
	ctx, span := observe.StartSpan(ctx, "discord.command",
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.String("command", name),
			attribute.String("user_id", UserID(i)),
		),
	)
	defer span.End()

	start := time.Now()
	entry.handler(ctx, resp, i)
	duration := time.Since(start)

	r.metrics.RecordCommand(ctx, name, duration)
	observe.Logger(ctx).Debug("discord command handled", "command", name, "user_id", UserID(i), "duration", duration)
}

func (r *CommandRouter) handleAutocomplete(resp Responder, i *discordgo.InteractionCreate) {
	name := i.ApplicationCommandData().Name

	r.mu.RLock()
	handler, ok := r.autocomplete[name]
	r.mu.RUnlock()

	if !ok {
		slog.Debug("discord: no autocomplete handler", "name", name)
		RespondChoices(resp, i, nil)
		return
	}

	ctx, cancel := r.commandContext()
	defer cancel()
	handler(ctx, resp, i)
}

func (r *CommandRouter) commandContext() (context.Context, context.CancelFunc) {
	if r.timeout > 0 {
		return context.WithTimeout(context.Background(), r.timeout)
	}
	return context.WithCancel(context.Background())
}

// UserID extracts the user ID from an interaction, handling both guild
// (Member) and DM (User) contexts.
func UserID(i *discordgo.InteractionCreate) string {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User.ID
	}
	if i.User != nil {
		return i.User.ID
	}
	return ""
}
