package admintools

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/AldoManuel/juchifood/src/assets"
	"github.com/AldoManuel/juchifood/src/auth"
	"github.com/AldoManuel/juchifood/src/blobstore"
	"github.com/AldoManuel/juchifood/src/config"
	"github.com/AldoManuel/juchifood/src/db"
	"github.com/AldoManuel/juchifood/src/imaging"
	"github.com/AldoManuel/juchifood/src/marketdata"
	"github.com/AldoManuel/juchifood/src/utils"
	"github.com/AldoManuel/juchifood/src/website"
	"github.com/spf13/cobra"
)

func init() {
	adminCommand := &cobra.Command{
		Use:   "admin",
		Short: "Miscellaneous admin commands",
	}
	website.WebsiteCommand.AddCommand(adminCommand)

	var name, description string
	createVendorCommand := &cobra.Command{
		Use:   "createvendor [email] [location]",
		Short: "Creates a vendor account, prompting for its password",
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) < 2 {
				fmt.Printf("You must provide an email and a location (one of %v).\n\n", config.Config.Locations)
				cmd.Usage()
				os.Exit(1)
			}

			password, err := PromptPassword(os.Stdout)
			if err != nil {
				fmt.Printf("Failed to read password: %v\n", err)
				os.Exit(1)
			}

			ctx := context.Background()
			editor, closeConn := newEditor(ctx)
			defer closeConn()

			v, err := editor.RegisterVendor(ctx, marketdata.RegisterInput{
				Email:       args[0],
				Password:    password,
				Name:        utils.OrDefault(name, args[0]),
				Description: utils.OrDefault(description, "-"),
				Location:    args[1],
			})
			if err != nil {
				var inputErr *marketdata.InputError
				if errors.As(err, &inputErr) {
					fmt.Println(inputErr.Message)
					os.Exit(1)
				}
				if errors.Is(err, marketdata.ErrEmailTaken) {
					fmt.Printf("%s already exists. Please pick a different email.\n", args[0])
					os.Exit(1)
				}
				panic(err)
			}

			fmt.Printf("Created vendor %s (%s)\n", v.Email, v.ID)
		},
	}
	createVendorCommand.Flags().StringVar(&name, "name", "", "Display name (defaults to the email)")
	createVendorCommand.Flags().StringVar(&description, "description", "", "Vendor description")
	adminCommand.AddCommand(createVendorCommand)

	setPasswordCommand := &cobra.Command{
		Use:   "setpassword [email]",
		Short: "Replace a vendor's password, prompting for the new one",
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) < 1 {
				fmt.Printf("You must provide an email.\n\n")
				cmd.Usage()
				os.Exit(1)
			}

			password, err := PromptPassword(os.Stdout)
			if err != nil {
				fmt.Printf("Failed to read password: %v\n", err)
				os.Exit(1)
			}
			if len(password) < marketdata.MinPasswordLength {
				fmt.Printf("The password must be at least %d characters long.\n", marketdata.MinPasswordLength)
				os.Exit(1)
			}

			ctx := context.Background()
			conn, err := db.NewConn(ctx)
			if err != nil {
				panic(err)
			}
			defer conn.Close(ctx)

			err = auth.SetPassword(ctx, conn, args[0], password)
			if err != nil {
				if errors.Is(err, auth.ErrVendorDoesNotExist) {
					fmt.Printf("Vendor '%s' not found\n", args[0])
					os.Exit(1)
				}
				panic(err)
			}

			fmt.Printf("Successfully updated password for '%s'\n", args[0])
		},
	}
	adminCommand.AddCommand(setPasswordCommand)

	deleteVendorCommand := &cobra.Command{
		Use:   "deletevendor [email]",
		Short: "Deletes a vendor, its products and all of their images",
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) < 1 {
				fmt.Printf("You must provide an email.\n\n")
				cmd.Usage()
				os.Exit(1)
			}

			ctx := context.Background()
			conn, err := db.NewConn(ctx)
			if err != nil {
				panic(err)
			}
			defer conn.Close(ctx)

			records := marketdata.NewPgRecords(conn)
			v, err := records.GetVendorByEmail(ctx, args[0])
			if err != nil {
				if errors.Is(err, db.NotFound) {
					fmt.Printf("Vendor '%s' not found\n", args[0])
					os.Exit(1)
				}
				panic(err)
			}

			editor := marketdata.NewEditor(records, newCoordinator(ctx))
			if err := editor.DeleteVendor(ctx, v.ID); err != nil {
				panic(err)
			}

			fmt.Printf("Deleted vendor %s (%s)\n", v.Email, v.ID)
		},
	}
	adminCommand.AddCommand(deleteVendorCommand)

	ensureBucketsCommand := &cobra.Command{
		Use:   "ensurebuckets",
		Short: "Creates the image buckets if they do not exist yet",
		Run: func(cmd *cobra.Command, args []string) {
			ctx := context.Background()
			blobs, err := blobstore.NewFromConfig(ctx)
			if err != nil {
				panic(err)
			}

			buckets := assets.BucketsFromConfig()
			for _, bucket := range []string{buckets.Profile, buckets.Product} {
				if err := blobs.EnsureBucket(ctx, bucket); err != nil {
					fmt.Printf("Failed to create bucket %s: %v\n", bucket, err)
					os.Exit(1)
				}
				fmt.Printf("Bucket %s is ready\n", bucket)
			}
		},
	}
	adminCommand.AddCommand(ensureBucketsCommand)
}

func newCoordinator(ctx context.Context) *assets.Coordinator {
	blobs, err := blobstore.NewFromConfig(ctx)
	if err != nil {
		panic(err)
	}
	return assets.NewCoordinator(blobs, assets.BucketsFromConfig(), imaging.PolicyFromConfig())
}

func newEditor(ctx context.Context) (*marketdata.Editor, func()) {
	conn, err := db.NewConn(ctx)
	if err != nil {
		panic(err)
	}
	editor := marketdata.NewEditor(marketdata.NewPgRecords(conn), newCoordinator(ctx))
	return editor, func() { conn.Close(ctx) }
}
