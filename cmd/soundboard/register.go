package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/MrWong99/soundboard/internal/discord"
	"github.com/MrWong99/soundboard/internal/discord/commands"
)

func newRegisterCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "register",
		Short: "Overwrite the guild's slash commands with the current set",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			session, err := discord.NewSession(opts.cfg.Discord.Token)
			if err != nil {
				return err
			}
			registered, err := discord.RegisterCommands(session, opts.cfg.Discord.GuildID, commands.Definitions())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Successfully registered %d application commands.\n", len(registered))
			return nil
		},
	}
}
