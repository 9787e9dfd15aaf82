package migration

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"os"
	"strings"

	"github.com/AldoManuel/juchifood/src/auth"
	"github.com/AldoManuel/juchifood/src/config"
	"github.com/AldoManuel/juchifood/src/db"
	"github.com/AldoManuel/juchifood/src/marketdata"
	"github.com/AldoManuel/juchifood/src/models"
	"github.com/AldoManuel/juchifood/src/oops"
	"github.com/AldoManuel/juchifood/src/website"
	lorem "github.com/HandmadeNetwork/golorem"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

const seedPassword = "password"

func init() {
	seedCommand := &cobra.Command{
		Use:   "seed",
		Short: "Migrate to the latest version and fill the database with sample vendors and products",
		Run: func(cmd *cobra.Command, args []string) {
			if err := SampleSeed(); err != nil {
				fmt.Printf("ERROR: %v\n", err)
				os.Exit(1)
			}
		},
	}
	website.WebsiteCommand.AddCommand(seedCommand)
}

var seedVendorNames = []string{
	"Tacos Don Pepe",
	"Café Olmeca",
	"Tortas La Güera",
	"Antojitos Doña Mary",
	"Jugos y Licuados El Oasis",
	"Tamales Chabelita",
	"Elotes El Güero",
	"Postres Caseros Lupita",
}

var seedProductNames = []string{
	"Taco de pastor",
	"Torta de milanesa",
	"Quesadilla",
	"Agua de jamaica",
	"Café americano",
	"Tamal verde",
	"Elote preparado",
	"Flan napolitano",
	"Licuado de plátano",
	"Empanada de queso",
}

// Seeds the database with sample data for local dev. Every vendor's password
// is "password".
func SampleSeed() error {
	if err := Migrate(LatestVersion()); err != nil {
		return err
	}

	ctx := context.Background()
	conn, err := db.NewConn(ctx)
	if err != nil {
		return err
	}
	defer conn.Close(ctx)

	tx, err := conn.Begin(ctx)
	if err != nil {
		return oops.New(err, "failed to start transaction")
	}
	defer tx.Rollback(ctx)

	records := marketdata.NewPgRecords(tx)
	r := rand.New(rand.NewSource(1))

	fmt.Printf("Creating vendors (all with password %q)...\n", seedPassword)
	for i, name := range seedVendorNames {
		location := config.Config.Locations[i%len(config.Config.Locations)]
		v, err := seedVendor(ctx, records, name, location)
		if err != nil {
			return err
		}

		numProducts := 1 + r.Intn(4)
		for j := 0; j < numProducts; j++ {
			_, err := records.InsertProduct(ctx, models.Product{
				ID:          uuid.New(),
				VendorID:    v.ID,
				Name:        seedProductNames[r.Intn(len(seedProductNames))],
				Price:       randomPrice(r),
				Description: lorem.Sentence(4, 12),
			})
			if err != nil {
				return err
			}
		}
		fmt.Printf("  %s (%s): %d products\n", v.Name, v.Location, numProducts)
	}

	return tx.Commit(ctx)
}

func seedVendor(ctx context.Context, records marketdata.Records, name, location string) (*models.Vendor, error) {
	return records.InsertVendor(ctx, models.Vendor{
		ID:          uuid.New(),
		Email:       seedEmail(name),
		Password:    auth.HashPassword(seedPassword).String(),
		Name:        name,
		Description: lorem.Paragraph(1, 2),
		Location:    location,
	})
}

func seedEmail(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ':
			b.WriteRune('.')
		}
	}
	return b.String() + "@example.com"
}

// A price between 10 and 90 pesos, in steps of 50 centavos.
func randomPrice(r *rand.Rand) float64 {
	return math.Round((10+r.Float64()*80)*2) / 2
}
