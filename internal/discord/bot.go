// Package discord provides the Discord bot layer of the soundboard. It owns
// the discordgo.Session lifecycle, routes slash command and autocomplete
// interactions to registered handlers, and answers voice-state lookups.
package discord

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bwmarrin/discordgo"
)

// Config holds Discord bot configuration.
type Config struct {
	// Token is the Discord bot token without the "Bot " prefix.
	Token string

	// GuildID is the single guild the bot serves.
	GuildID string
}

// Intents the bot identifies with. Voice states feed the requester lookup.
const Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildVoiceStates

// Bot owns the Discord gateway connection and routes interactions
// to registered command handlers.
type Bot struct {
	mu        sync.RWMutex
	session   *discordgo.Session
	router    *CommandRouter
	guildID   string
	ready     atomic.Bool
	closeOnce sync.Once
}

// New creates a Bot, connects to Discord, and registers the interaction
// handler with router.
func New(_ context.Context, cfg Config, router *CommandRouter) (*Bot, error) {
	session, err := NewSession(cfg.Token)
	if err != nil {
		return nil, err
	}
	session.Identify.Intents = Intents

	b := &Bot{
		session: session,
		router:  router,
		guildID: cfg.GuildID,
	}

	session.AddHandler(func(_ *discordgo.Session, r *discordgo.Ready) {
		b.ready.Store(true)
		slog.Info("discord gateway ready", "user", r.User.Username, "guilds", len(r.Guilds))
	})
	session.AddHandler(func(_ *discordgo.Session, _ *discordgo.Resumed) {
		b.ready.Store(true)
	})
	session.AddHandler(func(_ *discordgo.Session, _ *discordgo.Disconnect) {
		b.ready.Store(false)
		slog.Warn("discord gateway disconnected")
	})
	session.AddHandler(func(s *discordgo.Session, i *discordgo.InteractionCreate) {
		b.router.Handle(s, i)
	})

	if err := session.Open(); err != nil {
		return nil, fmt.Errorf("discord: open session: %w", err)
	}
	return b, nil
}

// NewSession creates an unopened session authenticated with token.
func NewSession(token string) (*discordgo.Session, error) {
	if token == "" {
		return nil, errors.New("discord: token is required")
	}
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("discord: create session: %w", err)
	}
	return session, nil
}

// RegisterCommands overwrites the guild's slash commands with cmds. The
// application ID is taken from the authenticated bot user.
func RegisterCommands(s *discordgo.Session, guildID string, cmds []*discordgo.ApplicationCommand) ([]*discordgo.ApplicationCommand, error) {
	var appID string
	if s.State != nil && s.State.User != nil {
		appID = s.State.User.ID
	} else {
		u, err := s.User("@me")
		if err != nil {
			return nil, fmt.Errorf("discord: fetch bot user: %w", err)
		}
		appID = u.ID
	}
	registered, err := s.ApplicationCommandBulkOverwrite(appID, guildID, cmds)
	if err != nil {
		return nil, fmt.Errorf("discord: register commands: %w", err)
	}
	return registered, nil
}

// GuildID returns the target guild ID.
func (b *Bot) GuildID() string {
	return b.guildID
}

// Session returns the underlying discordgo session. Used by the voice agent.
func (b *Bot) Session() *discordgo.Session {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.session
}

// Router returns the command router.
func (b *Bot) Router() *CommandRouter {
	return b.router
}

// Ready reports whether the gateway session is currently established.
func (b *Bot) Ready() bool {
	return b.ready.Load()
}

// Latency returns the last measured gateway heartbeat round trip.
func (b *Bot) Latency() time.Duration {
	return b.Session().HeartbeatLatency()
}

// UserVoiceChannel returns the voice channel userID is connected to in the
// bot's guild, served from the gateway state cache.
func (b *Bot) UserVoiceChannel(userID string) (string, bool) {
	vs, err := b.Session().State.VoiceState(b.guildID, userID)
	if err != nil || vs == nil || vs.ChannelID == "" {
		return "", false
	}
	return vs.ChannelID, true
}

// Run registers the router's slash commands with the Discord API and blocks
// until ctx is cancelled.
func (b *Bot) Run(ctx context.Context) error {
	cmds := b.router.ApplicationCommands()
	if len(cmds) > 0 {
		registered, err := RegisterCommands(b.Session(), b.guildID, cmds)
		if err != nil {
			return err
		}
		slog.Info("discord commands registered", "count", len(registered))
	}

	<-ctx.Done()
	return ctx.Err()
}

// Close disconnects from Discord. Registered commands stay in place so they
// survive restarts.
func (b *Bot) Close() error {
	var closeErr error
	b.closeOnce.Do(func() {
		b.mu.Lock()
		defer b.mu.Unlock()

		b.ready.Store(false)
		if b.session != nil {
			if err := b.session.Close(); err != nil {
				closeErr = fmt.Errorf("discord: close session: %w", err)
			}
		}

		slog.Info("discord bot closed")
	})
	return closeErr
}
