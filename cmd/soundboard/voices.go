package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/MrWong99/soundboard/internal/speech"
)

func newVoicesCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "voices",
		Short: "List the voices usable with /say",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			provider, err := newTTS(opts.cfg)
			if err != nil {
				return err
			}
			all, err := provider.ListVoices(cmd.Context())
			if err != nil {
				return fmt.Errorf("list voices: %w", err)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tID\tCATEGORY")
			for _, v := range speech.CustomVoices(all) {
				fmt.Fprintf(w, "%s\t%s\t%s\n", v.Name, v.ID, v.Category)
			}
			return w.Flush()
		},
	}
}
