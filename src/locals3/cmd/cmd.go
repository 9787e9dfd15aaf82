package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/AldoManuel/juchifood/src/config"
	"github.com/AldoManuel/juchifood/src/locals3"
	"github.com/AldoManuel/juchifood/src/website"
	"github.com/spf13/cobra"
)

func init() {
	var addr string
	s3Command := &cobra.Command{
		Use:   "locals3 [storage folder]",
		Short: "Run a local s3 server that stores in the filesystem",
		Run: func(cmd *cobra.Command, args []string) {
			dir := config.Config.LocalS3.Dir
			if len(args) > 0 {
				dir = args[0]
			}

			srv, err := locals3.NewServer(dir)
			if err != nil {
				fmt.Println(err)
				os.Exit(1)
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
			defer stop()

			if err := srv.ListenAndServe(ctx, addr); err != nil {
				fmt.Println(err)
				os.Exit(1)
			}
		},
	}
	s3Command.Flags().StringVar(&addr, "addr", config.Config.LocalS3.Addr, "Address to listen on")
	website.WebsiteCommand.AddCommand(s3Command)
}
