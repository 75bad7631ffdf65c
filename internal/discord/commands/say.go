package commands

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/MrWong99/soundboard/internal/discord"
	"github.com/MrWong99/soundboard/internal/speech"
	"github.com/MrWong99/soundboard/pkg/provider/tts"
)

// handleSay handles /say: join the requester, synthesize, and play.
func (sb *Soundboard) handleSay(ctx context.Context, r discord.Responder, i *discordgo.InteractionCreate) {
	req := speech.Request{
		Voice:       stringOption(i, "voice"),
		Text:        stringOption(i, "message"),
		Stability:   numberOption(i, "stability"),
		RequestedBy: discord.UserID(i),
	}

	channelID, ok := sb.voice.UserVoiceChannel(req.RequestedBy)
	if !ok {
		discord.RespondEphemeral(r, i, notInVoice)
		return
	}
	req.ChannelID = channelID

	// Synthesis regularly outlasts the interaction acknowledgement window.
	discord.DeferReply(r, i)

	if err := sb.join(ctx, channelID, false); err != nil {
		discord.FollowUpError(r, i, err)
		return
	}
	res, err := sb.speaker.Speak(ctx, req)
	if err != nil {
		discord.FollowUp(r, i, sayErrorMessage(req, err))
		return
	}
	discord.FollowUp(r, i, fmt.Sprintf("🗣️ **%s**: %s", res.Voice.Name, req.Text))
}

func sayErrorMessage(req speech.Request, err error) string {
	switch {
	case errors.Is(err, speech.ErrUnknownVoice):
		return fmt.Sprintf("I don't know a voice called `%s`. Use /voices to see them all.", req.Voice)
	case errors.Is(err, speech.ErrInvalidRequest):
		return fmt.Sprintf("Invalid request: %v", err)
	default:
		return fmt.Sprintf("Error: %v", err)
	}
}

// handleVoices handles /voices.
func (sb *Soundboard) handleVoices(ctx context.Context, r discord.Responder, i *discordgo.InteractionCreate) {
	discord.DeferReply(r, i)

	voices, err := sb.speaker.ListVoices(ctx)
	if err != nil {
		discord.FollowUpError(r, i, err)
		return
	}
	discord.FollowUp(r, i, formatVoices(voices))
}

// formatVoices renders one line per voice with its labels in key order.
func formatVoices(voices []tts.VoiceProfile) string {
	if len(voices) == 0 {
		return "No custom voices are available."
	}
	var b strings.Builder
	b.WriteString("**Voices**\n")
	for _, v := range voices {
		fmt.Fprintf(&b, "- %s", v.Name)
		if len(v.Labels) > 0 {
			parts := make([]string, 0, len(v.Labels))
			for _, k := range slices.Sorted(maps.Keys(v.Labels)) {
				parts = append(parts, k+": "+v.Labels[k])
			}
			fmt.Fprintf(&b, " (%s)", strings.Join(parts, ", "))
		}
		b.WriteByte('\n')
	}
	return strings.TrimRight(b.String(), "\n")
}
