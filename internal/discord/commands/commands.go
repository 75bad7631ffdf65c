// Package commands implements the soundboard's Discord slash commands.
package commands

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/MrWong99/soundboard/internal/catalog"
	"github.com/MrWong99/soundboard/internal/discord"
	"github.com/MrWong99/soundboard/internal/observe"
	"github.com/MrWong99/soundboard/internal/speech"
	"github.com/MrWong99/soundboard/pkg/audio"
	"github.com/MrWong99/soundboard/pkg/provider/tts"
)

// Speaker synthesizes and plays speech. It is satisfied by [*speech.Pipeline].
type Speaker interface {
	Speak(ctx context.Context, req speech.Request) (*speech.Result, error)
	ListVoices(ctx context.Context) ([]tts.VoiceProfile, error)
}

// VoiceStates reports which voice channel a guild member is in.
type VoiceStates interface {
	UserVoiceChannel(userID string) (channelID string, ok bool)
}

// Cues names the sounds played around joining and leaving. Empty disables a cue.
type Cues struct {
	OnJoin  string
	OnLeave string
}

// Deps holds the collaborators of [Soundboard].
type Deps struct {
	Catalog *catalog.Catalog
	Agent   audio.VoiceAgent
	Speaker Speaker
	Voice   VoiceStates

	// Latency reports the gateway heartbeat round trip for /ping. Optional.
	Latency func() time.Duration

	// Metrics defaults to [observe.DefaultMetrics].
	Metrics *observe.Metrics

	Cues Cues
}

// Soundboard holds the dependencies of every slash command.
type Soundboard struct {
	catalog   *catalog.Catalog
	resolver  *catalog.Resolver
	formatter *catalog.Formatter
	agent     audio.VoiceAgent
	speaker   Speaker
	voice     VoiceStates
	latency   func() time.Duration
	metrics   *observe.Metrics

	cues atomic.Pointer[Cues]
	bg   sync.WaitGroup
}

// New creates a Soundboard from d.
func New(d Deps) *Soundboard {
	sb := &Soundboard{
		catalog:   d.Catalog,
		resolver:  catalog.NewResolver(d.Catalog),
		formatter: catalog.NewFormatter(d.Catalog),
		agent:     d.Agent,
		speaker:   d.Speaker,
		voice:     d.Voice,
		latency:   d.Latency,
		metrics:   d.Metrics,
	}
	if sb.metrics == nil {
		sb.metrics = observe.DefaultMetrics()
	}
	sb.SetCues(d.Cues)
	return sb
}

// SetCues replaces the join and leave cues. Safe to call while commands run.
func (sb *Soundboard) SetCues(c Cues) {
	sb.cues.Store(&c)
}

// Close waits for background work started by commands, such as a leave
// deferred until its cue has played.
func (sb *Soundboard) Close() {
	sb.bg.Wait()
}

// Register registers every command handler with router.
func (sb *Soundboard) Register(router *discord.CommandRouter) {
	handlers := map[string]discord.HandlerFunc{
		"help":      sb.handleHelp,
		"ping":      sb.handlePing,
		"roll":      sb.handleRoll,
		"sound":     sb.handlePlay(catalog.Sound),
		"music":     sb.handlePlay(catalog.Music),
		"sounds":    sb.handleList(catalog.Sound),
		"musiclist": sb.handleList(catalog.Music),
		"say":       sb.handleSay,
		"voices":    sb.handleVoices,
		"leave":     sb.handleLeave,
	}
	for _, def := range Definitions() {
		router.RegisterCommand(def, handlers[def.Name])
	}
	router.RegisterAutocomplete("sound", sb.autocompleteAsset(catalog.Sound))
	router.RegisterAutocomplete("music", sb.autocompleteAsset(catalog.Music))
}

var (
	minStability = 0.0
	maxStability = 1.0
)

// Definitions returns the slash command definitions in display order.
func Definitions() []*discordgo.ApplicationCommand {
	return []*discordgo.ApplicationCommand{
		{
			Name:        "help",
			Description: "See all commands",
		},
		{
			Name:        "ping",
			Description: "Ping the bot server",
		},
		{
			Name:        "roll",
			Description: "Roll dice, such as 20, d20 or 2d6+3",
			Options: []*discordgo.ApplicationCommandOption{{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        "n",
				Description: "The die maximum value or a dice expression",
				Required:    true,
			}},
		},
		assetCommand("sound", "Play a sound", "The sound name, or closest match"),
		assetCommand("music", "Play a music track", "The track name, or closest match"),
		{
			Name:        "sounds",
			Description: "List all sounds",
		},
		{
			Name:        "musiclist",
			Description: "List all music tracks",
		},
		{
			Name:        "say",
			Description: "Speak a message with a synthesized voice",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "voice",
					Description: "The voice name, see /voices",
					Required:    true,
				},
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "message",
					Description: "What to say",
					Required:    true,
				},
				{
					Type:        discordgo.ApplicationCommandOptionNumber,
					Name:        "stability",
					Description: "Voice stability between 0 and 1 (default 0.5)",
					MinValue:    &minStability,
					MaxValue:    maxStability,
				},
			},
		},
		{
			Name:        "voices",
			Description: "List the available speech voices",
		},
		{
			Name:        "leave",
			Description: "Leave the voice channel",
		},
	}
}

func assetCommand(name, desc, queryDesc string) *discordgo.ApplicationCommand {
	return &discordgo.ApplicationCommand{
		Name:        name,
		Description: desc,
		Options: []*discordgo.ApplicationCommandOption{{
			Type:         discordgo.ApplicationCommandOptionString,
			Name:         "query",
			Description:  queryDesc,
			Required:     true,
			Autocomplete: true,
		}},
	}
}

// option returns the named top-level option, or nil.
func option(i *discordgo.InteractionCreate, name string) *discordgo.ApplicationCommandInteractionDataOption {
	for _, o := range i.ApplicationCommandData().Options {
		if o.Name == name {
			return o
		}
	}
	return nil
}

func stringOption(i *discordgo.InteractionCreate, name string) string {
	o := option(i, name)
	if o == nil {
		return ""
	}
	s, _ := o.Value.(string)
	return s
}

func numberOption(i *discordgo.InteractionCreate, name string) *float64 {
	o := option(i, name)
	if o == nil {
		return nil
	}
	f, ok := o.Value.(float64)
	if !ok {
		return nil
	}
	return &f
}

// focusedValue returns the text typed into the focused autocomplete option.
func focusedValue(i *discordgo.InteractionCreate) string {
	for _, o := range i.ApplicationCommandData().Options {
		if o.Focused {
			s, _ := o.Value.(string)
			return s
		}
	}
	return ""
}
