package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/MrWong99/soundboard/internal/dice"
	"github.com/MrWong99/soundboard/internal/discord"
)

// handleHelp handles /help.
func (sb *Soundboard) handleHelp(_ context.Context, r discord.Responder, i *discordgo.InteractionCreate) {
	discord.RespondEphemeral(r, i, helpText())
}

func helpText() string {
	var b strings.Builder
	b.WriteString("**Commands**\n")
	for _, c := range Definitions() {
		fmt.Fprintf(&b, "`/%s", c.Name)
		for _, o := range c.Options {
			if o.Required {
				fmt.Fprintf(&b, " %s", o.Name)
			} else {
				fmt.Fprintf(&b, " [%s]", o.Name)
			}
		}
		fmt.Fprintf(&b, "` %s\n", c.Description)
	}
	return strings.TrimRight(b.String(), "\n")
}

// handlePing handles /ping.
func (sb *Soundboard) handlePing(_ context.Context, r discord.Responder, i *discordgo.InteractionCreate) {
	if sb.latency == nil {
		discord.RespondEphemeral(r, i, "🏓 Pong!")
		return
	}
	discord.RespondEphemeral(r, i, fmt.Sprintf("🏓 Pong! Gateway latency: %dms", sb.latency().Milliseconds()))
}

// handleRoll handles /roll.
func (sb *Soundboard) handleRoll(_ context.Context, r discord.Responder, i *discordgo.InteractionCreate) {
	res, err := dice.Roll(stringOption(i, "n"))
	if err != nil {
		discord.RespondError(r, i, err)
		return
	}
	discord.Respond(r, i, dice.Format(res))
}
