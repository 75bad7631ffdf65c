package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/MrWong99/soundboard/internal/catalog"
	"github.com/MrWong99/soundboard/internal/discord"
	"github.com/MrWong99/soundboard/internal/observe"
	"github.com/MrWong99/soundboard/pkg/audio"
)

const notInVoice = "I don't see you in a voice channel."

// maxSuggestions caps the candidates listed for an ambiguous query.
const maxSuggestions = 15

func categoryNoun(cat catalog.Category) string {
	if cat == catalog.Music {
		return "track"
	}
	return "sound"
}

// handlePlay handles /sound and /music.
func (sb *Soundboard) handlePlay(cat catalog.Category) discord.HandlerFunc {
	return func(ctx context.Context, r discord.Responder, i *discordgo.InteractionCreate) {
		query := stringOption(i, "query")
		res := sb.resolver.Resolve(cat, query)
		sb.metrics.RecordResolve(ctx, string(cat), res.Tier.String())

		asset, ok := res.Resolved()
		if !ok {
			discord.RespondEphemeral(r, i, noMatchMessage(cat, query, res))
			return
		}

		channelID, ok := sb.voice.UserVoiceChannel(discord.UserID(i))
		if !ok {
			discord.RespondEphemeral(r, i, notInVoice)
			return
		}

		discord.DeferReply(r, i)

		if err := sb.join(ctx, channelID, true); err != nil {
			sb.metrics.RecordPlay(ctx, string(cat), observe.Status(err))
			discord.FollowUpError(r, i, err)
			return
		}
		pb, err := sb.agent.Play(ctx, sb.catalog.Path(asset))
		sb.metrics.RecordPlay(ctx, string(cat), observe.Status(err))
		if err != nil {
			observe.Logger(ctx).Warn("play failed", "category", cat, "file", asset.Filename, "err", err)
			discord.FollowUpError(r, i, fmt.Errorf("play %s: %w", asset.DisplayName, err))
			return
		}
		sb.trackPlayback(ctx, string(cat), pb)

		discord.FollowUp(r, i, fmt.Sprintf("🔊 Playing **%s**", asset.DisplayName))
	}
}

// noMatchMessage explains a query that did not resolve to exactly one asset.
func noMatchMessage(cat catalog.Category, query string, res catalog.MatchResult) string {
	noun := categoryNoun(cat)
	if !res.Ambiguous() {
		return fmt.Sprintf("No %s matches `%s`.", noun, query)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "`%s` matches %d of them, which %s did you mean?\n", query, len(res.Assets), noun)
	for n, a := range res.Assets {
		if n == maxSuggestions {
			fmt.Fprintf(&b, "…and %d more", len(res.Assets)-maxSuggestions)
			break
		}
		fmt.Fprintf(&b, "- %s\n", a.DisplayName)
	}
	return strings.TrimRight(b.String(), "\n")
}

// trackPlayback records the playback length once it has finished.
func (sb *Soundboard) trackPlayback(ctx context.Context, category string, pb *audio.Playback) {
	ctx = context.WithoutCancel(ctx)
	sb.bg.Go(func() {
		<-pb.Done()
		sb.metrics.RecordPlaybackDuration(ctx, category, pb.Duration())
	})
}

// join connects the agent to channelID unless it is already there, and plays
// the join cue after a fresh connect. With wait set, join returns once the
// cue has finished so the next Play does not cut it off.
func (sb *Soundboard) join(ctx context.Context, channelID string, wait bool) error {
	if sb.agent.ChannelID() == channelID {
		return nil
	}
	if err := sb.agent.Join(ctx, channelID); err != nil {
		return fmt.Errorf("join voice channel: %w", err)
	}

	cue := sb.cues.Load().OnJoin
	if cue == "" {
		return nil
	}
	pb, err := sb.agent.Play(ctx, cue)
	if err != nil {
		observe.Logger(ctx).Warn("join cue failed", "cue", cue, "err", err)
		return nil
	}
	if wait {
		select {
		case <-pb.Done():
		case <-ctx.Done():
		}
	}
	return nil
}

// handleList handles /sounds and /musiclist.
func (sb *Soundboard) handleList(cat catalog.Category) discord.HandlerFunc {
	return func(_ context.Context, r discord.Responder, i *discordgo.InteractionCreate) {
		discord.Respond(r, i, sb.formatter.Format(cat))
	}
}

// handleLeave handles /leave. With a leave cue configured the agent leaves
// once the cue has played, unless something else replaced it meanwhile.
func (sb *Soundboard) handleLeave(ctx context.Context, r discord.Responder, i *discordgo.InteractionCreate) {
	if sb.agent.ChannelID() == "" {
		discord.RespondEphemeral(r, i, "I'm not in a voice channel.")
		return
	}

	if cue := sb.cues.Load().OnLeave; cue != "" {
		pb, err := sb.agent.Play(ctx, cue)
		if err == nil {
			bg := context.WithoutCancel(ctx)
			sb.bg.Go(func() {
				<-pb.Done()
				if errors.Is(pb.Err(), audio.ErrReplaced) {
					return
				}
				if err := sb.agent.Leave(bg); err != nil && !errors.Is(err, audio.ErrNotConnected) {
					observe.Logger(bg).Warn("leave after cue failed", "err", err)
				}
			})
			discord.RespondEphemeral(r, i, "Leaving the voice channel")
			return
		}
		observe.Logger(ctx).Warn("leave cue failed", "cue", cue, "err", err)
	}

	if err := sb.agent.Leave(ctx); err != nil && !errors.Is(err, audio.ErrNotConnected) {
		discord.RespondError(r, i, fmt.Errorf("leave voice channel: %w", err))
		return
	}
	discord.RespondEphemeral(r, i, "Leaving the voice channel")
}

// autocompleteAsset suggests assets containing the typed text.
func (sb *Soundboard) autocompleteAsset(cat catalog.Category) discord.AutocompleteFunc {
	return func(_ context.Context, r discord.Responder, i *discordgo.InteractionCreate) {
		res := sb.resolver.Resolve(cat, focusedValue(i))
		n := min(len(res.Assets), discord.MaxChoices)
		choices := make([]*discordgo.ApplicationCommandOptionChoice, 0, n)
		for _, a := range res.Assets[:n] {
			choices = append(choices, discord.Choice(a.DisplayName, a.Filename))
		}
		discord.RespondChoices(r, i, choices)
	}
}
