package main

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/duetkeys/duet/internal/tools/convertchat"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	opts := convertchat.Options{}

	cmd := &cobra.Command{
		Use:   "convert_chat",
		Short: "Convert a raw chat export into the fixture set the app loads",
		Args:  cobra.ExactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			stats, err := convertchat.Convert(opts)
			if err != nil {
				return err
			}
			fmt.Printf("detected %s & %s\n", stats.PersonA, stats.PersonB)
			fmt.Printf("pools %d/%d, history %d over %d days, %d stars, %d bosses\n",
				stats.Pool1, stats.Pool2, stats.History, stats.Dates, stats.NightSky, stats.Bosses)
			return nil
		},
		SilenceUsage: true,
	}

	fs := cmd.Flags()
	fs.StringVarP(&opts.Input, "input", "i", "_chat.txt", "path to the chat export")
	fs.StringVarP(&opts.OutputDir, "output", "o", "fixtures", "directory for the generated JSON files")
	fs.IntVar(&opts.MaxWords, "max-words", 2500, "cap per typing word pool")
	fs.IntVar(&opts.MaxStars, "max-stars", 300, "cap for late-night messages")
	fs.IntVar(&opts.MaxBosses, "max-bosses", 100, "cap for boss messages")
	fs.Int64Var(&opts.Seed, "seed", time.Now().UnixNano(), "shuffle seed, fixed for reproducible output")

	cobra.CheckErr(cmd.Execute())
}
