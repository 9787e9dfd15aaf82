package website

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/AldoManuel/juchifood/src/assets"
	"github.com/AldoManuel/juchifood/src/blobstore"
	"github.com/AldoManuel/juchifood/src/config"
	"github.com/AldoManuel/juchifood/src/db"
	"github.com/AldoManuel/juchifood/src/imaging"
	"github.com/AldoManuel/juchifood/src/jobs"
	"github.com/AldoManuel/juchifood/src/locals3"
	"github.com/AldoManuel/juchifood/src/logging"
	"github.com/AldoManuel/juchifood/src/marketdata"
	"github.com/AldoManuel/juchifood/src/utils"
	"github.com/spf13/cobra"
)

var useMemoryRecords bool

var WebsiteCommand = &cobra.Command{
	Short: "Run the juchifood API server",
	Run: func(cmd *cobra.Command, args []string) {
		defer logging.LogPanics(nil)
		logging.Info().Msg("Hello, juchifood!")

		ctx := context.Background()

		var backgroundJobs jobs.Jobs
		if config.Config.LocalS3.Enabled {
			backgroundJobs = append(backgroundJobs, locals3.StartServer())
		}

		var records marketdata.Records
		if useMemoryRecords {
			logging.Warn().Msg("Keeping records in memory; everything is lost on exit")
			records = marketdata.NewMemRecords()
		} else {
			conn := utils.Must1(db.NewConnPool(ctx))
			defer conn.Close()
			records = marketdata.NewPgRecords(conn)
		}

		blobs := utils.Must1(blobstore.NewFromConfig(ctx))
		buckets := assets.BucketsFromConfig()
		if !config.Config.LocalS3.Enabled {
			for _, bucket := range []string{buckets.Profile, buckets.Product} {
				if err := blobs.EnsureBucket(ctx, bucket); err != nil {
					logging.Warn().Err(err).Str("bucket", bucket).Msg("Could not ensure image bucket exists")
				}
			}
		}

		coordinator := assets.NewCoordinator(blobs, buckets, imaging.PolicyFromConfig())
		editor := marketdata.NewEditor(records, coordinator)

		server := &http.Server{
			Addr:    config.Config.Addr,
			Handler: NewWebsiteRoutes(editor),
		}
		serverJob := jobs.Run("http server", func(ctx context.Context) error {
			return serve(ctx, server)
		})
		backgroundJobs = append(backgroundJobs, serverJob)

		// Wait for SIGINT (or the server dying) and trigger graceful shutdown
		signals := make(chan os.Signal, 1)
		signal.Notify(signals, os.Interrupt)
		select {
		case <-signals: // First SIGINT (start shutdown)
			logging.Info().Msg("Shutting down the website")
		case <-serverJob.Finished():
			logging.Error().Msg("Server shut down unexpectedly")
		}

		go func() {
			<-signals // Second SIGINT (force quit)
			logging.Warn().Strs("Unfinished background jobs", backgroundJobs.ListUnfinished()).Msg("Forcibly killed the website")
			os.Exit(1)
		}()

		logging.Info().Msg("Shutting down background jobs...")
		unfinished := backgroundJobs.CancelAndWait(10 * time.Second)
		if len(unfinished) == 0 {
			logging.Info().Msg("Background jobs closed gracefully")
		} else {
			logging.Warn().Strs("Unfinished", unfinished).Msg("Background jobs did not finish by the deadline")
		}
	},
}

func init() {
	WebsiteCommand.Flags().BoolVar(&useMemoryRecords, "memory", false, "Keep vendors and products in memory instead of Postgres")
}

// Runs server until ctx is cancelled, then gives in-flight requests a few
// seconds to finish.
func serve(ctx context.Context, server *http.Server) error {
	go func() {
		<-ctx.Done()
		timeoutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(timeoutCtx); err != nil {
			logging.Warn().Err(err).Msg("Server did not shut down gracefully")
		}
	}()

	logging.Info().Str("addr", server.Addr).Msg("Serving the website")
	err := server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}
