package discord

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/bwmarrin/discordgo"
)

// MaxMessageLength is the Discord limit on message content.
const MaxMessageLength = 2000

// MaxChoices is the Discord limit on autocomplete choices.
const MaxChoices = 25

// maxChoiceLength is the Discord limit on a choice name or value.
const maxChoiceLength = 100

// Responder is the subset of [discordgo.Session] used to answer
// interactions. Tests substitute the recorder from the mock package.
type Responder interface {
	InteractionRespond(interaction *discordgo.Interaction, resp *discordgo.InteractionResponse, options ...discordgo.RequestOption) error
	FollowupMessageCreate(interaction *discordgo.Interaction, wait bool, data *discordgo.WebhookParams, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

var _ Responder = (*discordgo.Session)(nil)

// Respond sends a public text response, split across follow-up messages
// when it exceeds [MaxMessageLength].
func Respond(r Responder, i *discordgo.InteractionCreate, content string) {
	respond(r, i, content, 0)
}

// RespondEphemeral sends an ephemeral text response to an interaction.
func RespondEphemeral(r Responder, i *discordgo.InteractionCreate, content string) {
	respond(r, i, content, discordgo.MessageFlagsEphemeral)
}

func respond(r Responder, i *discordgo.InteractionCreate, content string, flags discordgo.MessageFlags) {
	chunks := Chunk(content, MaxMessageLength)
	err := r.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: chunks[0],
			Flags:   flags,
		},
	})
	if err != nil {
		slog.Warn("discord: failed to send response", "err", err)
		return
	}
	for _, c := range chunks[1:] {
		followUp(r, i, c, flags)
	}
}

// RespondError sends a formatted error response (ephemeral).
func RespondError(r Responder, i *discordgo.InteractionCreate, err error) {
	RespondEphemeral(r, i, fmt.Sprintf("Error: %v", err))
}

// RespondChoices answers an autocomplete interaction. Choices beyond
// [MaxChoices] are dropped.
func RespondChoices(r Responder, i *discordgo.InteractionCreate, choices []*discordgo.ApplicationCommandOptionChoice) {
	if len(choices) > MaxChoices {
		choices = choices[:MaxChoices]
	}
	err := r.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionApplicationCommandAutocompleteResult,
		Data: &discordgo.InteractionResponseData{Choices: choices},
	})
	if err != nil {
		slog.Warn("discord: failed to send autocomplete choices", "err", err)
	}
}

// Choice builds an autocomplete choice, clipping both fields to the
// Discord limit.
func Choice(name, value string) *discordgo.ApplicationCommandOptionChoice {
	return &discordgo.ApplicationCommandOptionChoice{
		Name:  clip(name, maxChoiceLength),
		Value: clip(value, maxChoiceLength),
	}
}

// DeferReply sends a deferred ephemeral response (for long-running
// commands). The first [FollowUp] replaces the loading state.
func DeferReply(r Responder, i *discordgo.InteractionCreate) {
	err := r.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Flags: discordgo.MessageFlagsEphemeral,
		},
	})
	if err != nil {
		slog.Warn("discord: failed to defer reply", "err", err)
	}
}

// FollowUp sends an ephemeral follow-up message after a deferred response.
func FollowUp(r Responder, i *discordgo.InteractionCreate, content string) {
	for _, c := range Chunk(content, MaxMessageLength) {
		followUp(r, i, c, discordgo.MessageFlagsEphemeral)
	}
}

// FollowUpError sends a formatted error follow-up (ephemeral).
func FollowUpError(r Responder, i *discordgo.InteractionCreate, err error) {
	FollowUp(r, i, fmt.Sprintf("Error: %v", err))
}

func followUp(r Responder, i *discordgo.InteractionCreate, content string, flags discordgo.MessageFlags) {
	_, err := r.FollowupMessageCreate(i.Interaction, true, &discordgo.WebhookParams{
		Content: content,
		Flags:   flags,
	})
	if err != nil {
		slog.Warn("discord: failed to send follow-up", "err", err)
	}
}

// Chunk splits s into pieces of at most limit bytes, preferring line
// breaks and never splitting a UTF-8 sequence. It always returns at least
// one element.
func Chunk(s string, limit int) []string {
	if len(s) <= limit {
		return []string{s}
	}
	var out []string
	for len(s) > limit {
		cut := strings.LastIndexByte(s[:limit+1], '\n')
		if cut <= 0 {
			cut = limit
			for cut > 0 && !utf8Start(s[cut]) {
				cut--
			}
			if cut == 0 {
				cut = limit
			}
		}
		out = append(out, s[:cut])
		s = strings.TrimPrefix(s[cut:], "\n")
	}
	if s != "" {
		out = append(out, s)
	}
	return out
}

// utf8Start reports whether b begins a UTF-8 sequence.
func utf8Start(b byte) bool { return b&0xC0 != 0x80 }

func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := n
	for cut > 0 && !utf8Start(s[cut]) {
		cut--
	}
	return s[:cut]
}
