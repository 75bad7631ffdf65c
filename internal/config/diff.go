package config

import "reflect"

// ConfigDiff describes what changed between two configs.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// CuesChanged is true when on_join_sound or on_leave_sound changed.
	CuesChanged bool

	// RestartRequired lists changed sections that only take effect after a
	// restart, e.g. "providers.tts".
	RestartRequired []string
}

// Changed reports whether d carries any change.
func (d ConfigDiff) Changed() bool {
	return d.LogLevelChanged || d.CuesChanged || len(d.RestartRequired) > 0
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if old.Discord.OnJoinSound != new.Discord.OnJoinSound || old.Discord.OnLeaveSound != new.Discord.OnLeaveSound {
		d.CuesChanged = true
	}

	sections := []struct {
		name     string
		old, new any
	}{
		{"server.listen_addr", old.Server.ListenAddr, new.Server.ListenAddr},
		{"discord.token", old.Discord.Token, new.Discord.Token},
		{"discord.guild_id", old.Discord.GuildID, new.Discord.GuildID},
		{"discord.command_timeout", old.Discord.CommandTimeout, new.Discord.CommandTimeout},
		{"providers.tts", old.Providers.TTS, new.Providers.TTS},
		{"paths", old.Paths, new.Paths},
		{"ffmpeg", old.FFmpeg, new.FFmpeg},
		{"speech", old.Speech, new.Speech},
		{"archive", old.Archive, new.Archive},
	}
	for _, s := range sections {
		if !reflect.DeepEqual(s.old, s.new) {
			d.RestartRequired = append(d.RestartRequired, s.name)
		}
	}

	return d
}
