package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/MrWong99/soundboard/internal/catalog"
	"github.com/MrWong99/soundboard/internal/discord"
	"github.com/MrWong99/soundboard/internal/discord/mock"
	"github.com/MrWong99/soundboard/internal/observe"
	"github.com/MrWong99/soundboard/internal/speech"
	"github.com/MrWong99/soundboard/pkg/audio"
	audiomock "github.com/MrWong99/soundboard/pkg/audio/mock"
	"github.com/MrWong99/soundboard/pkg/provider/tts"
)

// fakeSpeaker records Speak requests and returns canned results.
type fakeSpeaker struct {
	mu       sync.Mutex
	requests []speech.Request
	err      error
	voices   []tts.VoiceProfile
	listErr  error
}

func (f *fakeSpeaker) Speak(_ context.Context, req speech.Request) (*speech.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	return &speech.Result{Voice: tts.VoiceProfile{Name: req.Voice}}, nil
}

func (f *fakeSpeaker) ListVoices(context.Context) ([]tts.VoiceProfile, error) {
	return f.voices, f.listErr
}

// voiceStates maps user IDs to voice channels.
type voiceStates map[string]string

func (v voiceStates) UserVoiceChannel(userID string) (string, bool) {
	ch, ok := v[userID]
	return ch, ok
}

type fixture struct {
	cat     *catalog.Catalog
	agent   *audiomock.Agent
	speaker *fakeSpeaker
	sb      *Soundboard
	router  *discord.CommandRouter
}

func newFixture(t *testing.T, cues Cues) *fixture {
	t.Helper()
	root := t.TempDir()
	soundDir := filepath.Join(root, "sounds")
	musicDir := filepath.Join(root, "music")
	files := map[string][]string{
		soundDir: {"boom.ogg", "airhorn_1.ogg", "airhorn_2.ogg", "hello.ogg"},
		musicDir: {"theme.mp3"},
	}
	for dir, names := range files {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatal(err)
		}
		for _, n := range names {
			if err := os.WriteFile(filepath.Join(dir, n), []byte("x"), 0o644); err != nil {
				t.Fatal(err)
			}
		}
	}
	cat := catalog.New(soundDir, musicDir)
	if err := cat.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}

	m, err := observe.NewMetrics(noop.NewMeterProvider())
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	f := &fixture{
		cat:     cat,
		agent:   &audiomock.Agent{},
		speaker: &fakeSpeaker{},
	}
	f.sb = New(Deps{
		Catalog: cat,
		Agent:   f.agent,
		Speaker: f.speaker,
		Voice:   voiceStates{"user-1": "voice-1"},
		Latency: func() time.Duration { return 42 * time.Millisecond },
		Metrics: m,
		Cues:    cues,
	})
	f.router = discord.NewCommandRouter(discord.WithMetrics(m), discord.WithTimeout(5*time.Second))
	f.sb.Register(f.router)
	t.Cleanup(f.sb.Close)
	return f
}

// run dispatches a command from user and returns the recorder.
func (f *fixture) run(user, name string, opts ...*discordgo.ApplicationCommandInteractionDataOption) *mock.InteractionResponder {
	resp := &mock.InteractionResponder{}
	f.router.Handle(resp, interaction(discordgo.InteractionApplicationCommand, user, name, opts...))
	return resp
}

func interaction(typ discordgo.InteractionType, user, name string, opts ...*discordgo.ApplicationCommandInteractionDataOption) *discordgo.InteractionCreate {
	return &discordgo.InteractionCreate{
		Interaction: &discordgo.Interaction{
			Type:   typ,
			Member: &discordgo.Member{User: &discordgo.User{ID: user}},
			Data:   discordgo.ApplicationCommandInteractionData{Name: name, Options: opts},
		},
	}
}

func str(name, value string) *discordgo.ApplicationCommandInteractionDataOption {
	return &discordgo.ApplicationCommandInteractionDataOption{
		Name:  name,
		Type:  discordgo.ApplicationCommandOptionString,
		Value: value,
	}
}

func num(name string, value float64) *discordgo.ApplicationCommandInteractionDataOption {
	return &discordgo.ApplicationCommandInteractionDataOption{
		Name:  name,
		Type:  discordgo.ApplicationCommandOptionNumber,
		Value: value,
	}
}

func lastMessage(t *testing.T, resp *mock.InteractionResponder) string {
	t.Helper()
	msgs := resp.Messages()
	if len(msgs) == 0 {
		t.Fatal("no message sent")
	}
	return msgs[len(msgs)-1]
}

func ephemeral(resp *mock.InteractionResponder) bool {
	if f := resp.LastFollowUp(); f != nil {
		return f.Flags&discordgo.MessageFlagsEphemeral != 0
	}
	r := resp.LastResponse()
	return r != nil && r.Data != nil && r.Data.Flags&discordgo.MessageFlagsEphemeral != 0
}

func TestSound_PlaysExactMatch(t *testing.T) {
	t.Parallel()
	f := newFixture(t, Cues{})

	resp := f.run("user-1", "sound", str("query", "boom.ogg"))

	if got := lastMessage(t, resp); got != "🔊 Playing **boom**" {
		t.Errorf("reply = %q", got)
	}
	if got := f.agent.CallsTo("Join"); !slices.Equal(got, []string{"voice-1"}) {
		t.Errorf("Join calls = %v", got)
	}
	want := filepath.Join(f.cat.Dir(catalog.Sound), "boom.ogg")
	if got := f.agent.CallsTo("Play"); !slices.Equal(got, []string{want}) {
		t.Errorf("Play calls = %v, want [%s]", got, want)
	}
}

func TestSound_UniqueSubstring(t *testing.T) {
	t.Parallel()
	f := newFixture(t, Cues{})

	resp := f.run("user-1", "music", str("query", "hem"))
	if got := lastMessage(t, resp); got != "🔊 Playing **theme**" {
		t.Errorf("reply = %q", got)
	}
}

func TestSound_Unresolved(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		query string
		want  []string
	}{
		{"none", "zzz", []string{"No sound matches `zzz`."}},
		{"ambiguous", "airhorn", []string{"`airhorn` matches 2 of them", "- airhorn_1", "- airhorn_2"}},
		{"case sensitive", "BOOM", []string{"No sound matches `BOOM`."}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := newFixture(t, Cues{})
			resp := f.run("user-1", "sound", str("query", tt.query))

			msg := lastMessage(t, resp)
			for _, w := range tt.want {
				if !strings.Contains(msg, w) {
					t.Errorf("reply %q missing %q", msg, w)
				}
			}
			if !ephemeral(resp) {
				t.Error("unresolved reply should be ephemeral")
			}
			if len(f.agent.Calls) != 0 {
				t.Errorf("agent calls = %v, want none", f.agent.Methods())
			}
		})
	}
}

func TestNoMatchMessage_CapsSuggestions(t *testing.T) {
	t.Parallel()

	res := catalog.MatchResult{Tier: catalog.TierAmbiguous}
	for n := range maxSuggestions + 5 {
		res.Assets = append(res.Assets, catalog.Asset{DisplayName: fmt.Sprintf("clip_%02d", n)})
	}
	msg := noMatchMessage(catalog.Sound, "clip", res)
	if !strings.HasSuffix(msg, "…and 5 more") {
		t.Errorf("message does not end with overflow count: %q", msg)
	}
	if strings.Contains(msg, fmt.Sprintf("clip_%02d", maxSuggestions)) {
		t.Error("listed more than maxSuggestions candidates")
	}
}

func TestSound_RequesterNotInVoice(t *testing.T) {
	t.Parallel()
	f := newFixture(t, Cues{})

	resp := f.run("stranger", "sound", str("query", "boom.ogg"))
	if got := lastMessage(t, resp); got != notInVoice {
		t.Errorf("reply = %q", got)
	}
	if !ephemeral(resp) || len(f.agent.Calls) != 0 {
		t.Errorf("ephemeral=%v calls=%v", ephemeral(resp), f.agent.Methods())
	}
}

func TestSound_JoinCuePlaysBeforeRequest(t *testing.T) {
	t.Parallel()
	f := newFixture(t, Cues{OnJoin: "hello.ogg"})

	f.run("user-1", "sound", str("query", "boom.ogg"))
	f.run("user-1", "sound", str("query", "boom.ogg"))

	if got, want := f.agent.Methods(), []string{"Join", "Play", "Play", "Play"}; !slices.Equal(got, want) {
		t.Fatalf("calls = %v, want %v", got, want)
	}
	if got := f.agent.CallsTo("Play")[0]; got != "hello.ogg" {
		t.Errorf("first Play = %q, want the join cue", got)
	}
}

func TestSound_JoinFailure(t *testing.T) {
	t.Parallel()
	f := newFixture(t, Cues{})
	f.agent.JoinErr = errors.New("missing permissions")

	resp := f.run("user-1", "sound", str("query", "boom.ogg"))
	if got := lastMessage(t, resp); !strings.Contains(got, "missing permissions") {
		t.Errorf("reply = %q", got)
	}
	if !ephemeral(resp) {
		t.Error("error reply should be ephemeral")
	}
	if len(f.agent.CallsTo("Play")) != 0 {
		t.Error("Play called after failed join")
	}
}

func TestSound_PlayFailure(t *testing.T) {
	t.Parallel()
	f := newFixture(t, Cues{})
	f.agent.PlayErr = audio.ErrUnknownTarget

	resp := f.run("user-1", "sound", str("query", "boom.ogg"))
	if got := lastMessage(t, resp); !strings.Contains(got, "play boom") {
		t.Errorf("reply = %q", got)
	}
}

func TestLists(t *testing.T) {
	t.Parallel()
	f := newFixture(t, Cues{})

	sounds := lastMessage(t, f.run("user-1", "sounds"))
	if sounds != f.sb.formatter.Format(catalog.Sound) {
		t.Errorf("sounds reply = %q", sounds)
	}
	if !strings.Contains(sounds, "`airhorn` (2)") {
		t.Errorf("sounds reply missing set: %q", sounds)
	}
	music := lastMessage(t, f.run("user-1", "musiclist"))
	if !strings.Contains(music, "theme") || strings.Contains(music, "boom") {
		t.Errorf("music reply = %q", music)
	}
}

func TestAutocomplete(t *testing.T) {
	t.Parallel()
	f := newFixture(t, Cues{})

	i := interaction(discordgo.InteractionApplicationCommandAutocomplete, "user-1", "sound",
		&discordgo.ApplicationCommandInteractionDataOption{
			Name: "query", Type: discordgo.ApplicationCommandOptionString, Value: "air", Focused: true,
		})
	resp := &mock.InteractionResponder{}
	f.router.Handle(resp, i)

	// Choices follow catalog order, which is directory order on disk.
	got := make(map[string]any)
	for _, c := range resp.LastResponse().Data.Choices {
		got[c.Name] = c.Value
	}
	want := map[string]any{"airhorn_1": "airhorn_1.ogg", "airhorn_2": "airhorn_2.ogg"}
	if len(got) != len(want) {
		t.Fatalf("choices = %v, want %v", got, want)
	}
	for name, value := range want {
		if got[name] != value {
			t.Errorf("choice %q = %v, want %v", name, got[name], value)
		}
	}
}

func TestSay(t *testing.T) {
	t.Parallel()
	f := newFixture(t, Cues{})

	resp := f.run("user-1", "say", str("voice", "Rachel"), str("message", "hello there"), num("stability", 0.2))

	if got := lastMessage(t, resp); got != "🗣️ **Rachel**: hello there" {
		t.Errorf("reply = %q", got)
	}
	if len(f.speaker.requests) != 1 {
		t.Fatalf("Speak calls = %d", len(f.speaker.requests))
	}
	req := f.speaker.requests[0]
	if req.Voice != "Rachel" || req.Text != "hello there" || req.ChannelID != "voice-1" || req.RequestedBy != "user-1" {
		t.Errorf("request = %+v", req)
	}
	if req.Stability == nil || *req.Stability != 0.2 {
		t.Errorf("stability = %v", req.Stability)
	}
}

func TestSay_DefaultStability(t *testing.T) {
	t.Parallel()
	f := newFixture(t, Cues{})

	f.run("user-1", "say", str("voice", "Rachel"), str("message", "hi"))
	if s := f.speaker.requests[0].Stability; s != nil {
		t.Errorf("stability = %v, want nil", *s)
	}
}

func TestSay_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want string
	}{
		{"unknown voice", fmt.Errorf("wrap: %w", speech.ErrUnknownVoice), "I don't know a voice called `Nobody`"},
		{"invalid", speech.ErrInvalidRequest, "Invalid request"},
		{"synthesis", fmt.Errorf("%w: status 401: bad key", speech.ErrSynthesisFailed), "status 401: bad key"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := newFixture(t, Cues{})
			f.speaker.err = tt.err

			resp := f.run("user-1", "say", str("voice", "Nobody"), str("message", "hi"))
			if got := lastMessage(t, resp); !strings.Contains(got, tt.want) {
				t.Errorf("reply = %q, want it to contain %q", got, tt.want)
			}
			if !ephemeral(resp) {
				t.Error("error reply should be ephemeral")
			}
		})
	}
}

func TestSay_NotInVoice(t *testing.T) {
	t.Parallel()
	f := newFixture(t, Cues{})

	resp := f.run("stranger", "say", str("voice", "Rachel"), str("message", "hi"))
	if lastMessage(t, resp) != notInVoice || len(f.speaker.requests) != 0 {
		t.Error("say should refuse requesters outside voice")
	}
}

func TestVoices(t *testing.T) {
	t.Parallel()
	f := newFixture(t, Cues{})
	f.speaker.voices = []tts.VoiceProfile{
		{Name: "Narrator", Labels: map[string]string{"gender": "male", "accent": "british"}},
		{Name: "Bot"},
	}

	got := lastMessage(t, f.run("user-1", "voices"))
	want := "**Voices**\n- Narrator (accent: british, gender: male)\n- Bot"
	if got != want {
		t.Errorf("reply = %q, want %q", got, want)
	}
}

func TestVoices_Empty(t *testing.T) {
	t.Parallel()
	f := newFixture(t, Cues{})

	if got := lastMessage(t, f.run("user-1", "voices")); got != "No custom voices are available." {
		t.Errorf("reply = %q", got)
	}
}

func TestLeave(t *testing.T) {
	t.Parallel()

	t.Run("not connected", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, Cues{})
		resp := f.run("user-1", "leave")
		if got := lastMessage(t, resp); got != "I'm not in a voice channel." {
			t.Errorf("reply = %q", got)
		}
	})

	t.Run("without cue", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, Cues{})
		_ = f.agent.Join(context.Background(), "voice-1")

		resp := f.run("user-1", "leave")
		if got := lastMessage(t, resp); got != "Leaving the voice channel" {
			t.Errorf("reply = %q", got)
		}
		if f.agent.ChannelID() != "" {
			t.Error("agent still connected")
		}
	})

	t.Run("with cue", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, Cues{OnLeave: "bye.ogg"})
		_ = f.agent.Join(context.Background(), "voice-1")

		f.run("user-1", "leave")
		f.sb.Close()

		if got, want := f.agent.Methods(), []string{"Join", "Play", "Leave"}; !slices.Equal(got, want) {
			t.Errorf("calls = %v, want %v", got, want)
		}
		if got := f.agent.CallsTo("Play"); got[0] != "bye.ogg" {
			t.Errorf("cue = %v", got)
		}
	})

	t.Run("cue replaced", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, Cues{OnLeave: "bye.ogg"})
		f.agent.Hold = true
		_ = f.agent.Join(context.Background(), "voice-1")

		f.run("user-1", "leave")
		f.run("user-1", "sound", str("query", "boom.ogg"))
		f.agent.FinishAll()
		f.sb.Close()

		if slices.Contains(f.agent.Methods(), "Leave") {
			t.Error("agent left although the leave cue was replaced")
		}
	})
}

func TestSetCues(t *testing.T) {
	t.Parallel()
	f := newFixture(t, Cues{})
	f.sb.SetCues(Cues{OnJoin: "hello.ogg"})

	f.run("user-1", "sound", str("query", "boom.ogg"))
	if got := f.agent.CallsTo("Play"); len(got) != 2 || got[0] != "hello.ogg" {
		t.Errorf("Play calls = %v", got)
	}
}

func TestRoll(t *testing.T) {
	t.Parallel()
	f := newFixture(t, Cues{})

	resp := f.run("user-1", "roll", str("n", "d20"))
	if got := lastMessage(t, resp); !strings.HasPrefix(got, "🎲 d20: **") {
		t.Errorf("reply = %q", got)
	}
	if ephemeral(resp) {
		t.Error("roll result should be public")
	}

	resp = f.run("user-1", "roll", str("n", "banana"))
	if got := lastMessage(t, resp); !strings.HasPrefix(got, "Error: dice: invalid expression") {
		t.Errorf("reply = %q", got)
	}
	if !ephemeral(resp) {
		t.Error("roll error should be ephemeral")
	}
}

func TestHelpAndPing(t *testing.T) {
	t.Parallel()
	f := newFixture(t, Cues{})

	help := lastMessage(t, f.run("user-1", "help"))
	for _, want := range []string{"`/say voice message [stability]`", "`/sound query`", "`/leave`"} {
		if !strings.Contains(help, want) {
			t.Errorf("help missing %q:\n%s", want, help)
		}
	}
	if got := lastMessage(t, f.run("user-1", "ping")); got != "🏓 Pong! Gateway latency: 42ms" {
		t.Errorf("ping = %q", got)
	}
}

func TestDefinitions(t *testing.T) {
	t.Parallel()

	want := []string{"help", "ping", "roll", "sound", "music", "sounds", "musiclist", "say", "voices", "leave"}
	defs := Definitions()
	var names []string
	for _, d := range defs {
		names = append(names, d.Name)
		if d.Description == "" {
			t.Errorf("%s has no description", d.Name)
		}
	}
	if !slices.Equal(names, want) {
		t.Errorf("names = %v, want %v", names, want)
	}
	for _, d := range defs {
		if d.Name == "sound" || d.Name == "music" {
			if !d.Options[0].Autocomplete {
				t.Errorf("%s query should autocomplete", d.Name)
			}
		}
	}

	r := discord.NewCommandRouter()
	New(Deps{}).Register(r)
	if len(r.ApplicationCommands()) != len(want) {
		t.Errorf("registered %d commands", len(r.ApplicationCommands()))
	}
}
