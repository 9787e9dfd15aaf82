package migration

import (
	"context"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/AldoManuel/juchifood/src/db"
	"github.com/AldoManuel/juchifood/src/migration/migrations"
	"github.com/AldoManuel/juchifood/src/migration/types"
	"github.com/AldoManuel/juchifood/src/oops"
	"github.com/AldoManuel/juchifood/src/utils"
	"github.com/AldoManuel/juchifood/src/website"
	"github.com/jackc/pgx/v5"
	"github.com/spf13/cobra"
)

var listMigrations bool

func init() {
	migrateCommand := &cobra.Command{
		Use:   "migrate [target migration id]",
		Short: "Run database migrations",
		Run: func(cmd *cobra.Command, args []string) {
			if listMigrations {
				ListMigrations()
				return
			}

			targetVersion := time.Time{}
			if len(args) > 0 {
				var err error
				targetVersion, err = time.Parse(time.RFC3339, args[0])
				if err != nil {
					fmt.Printf("ERROR: bad version string: %v\n", err)
					os.Exit(1)
				}
			}
			if err := Migrate(types.MigrationVersion(targetVersion)); err != nil {
				fmt.Printf("ERROR: %v\n", err)
				os.Exit(1)
			}
		},
	}
	migrateCommand.Flags().BoolVar(&listMigrations, "list", false, "List available migrations")

	makeMigrationCommand := &cobra.Command{
		Use:   "makemigration <name> <description>...",
		Short: "Create a new database migration file",
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) < 2 {
				fmt.Printf("You must provide a name and a description.\n\n")
				cmd.Usage()
				os.Exit(1)
			}

			name := args[0]
			description := strings.Join(args[1:], " ")

			MakeMigration(name, description)
		},
	}

	website.WebsiteCommand.AddCommand(migrateCommand)
	website.WebsiteCommand.AddCommand(makeMigrationCommand)
}

func getSortedMigrationVersions() []types.MigrationVersion {
	var allVersions []types.MigrationVersion
	for migrationTime := range migrations.All {
		allVersions = append(allVersions, migrationTime)
	}
	sort.Slice(allVersions, func(i, j int) bool {
		return allVersions[i].Before(allVersions[j])
	})

	return allVersions
}

func LatestVersion() types.MigrationVersion {
	allVersions := getSortedMigrationVersions()
	return allVersions[len(allVersions)-1]
}

func getCurrentVersion(ctx context.Context, conn *pgx.Conn) (types.MigrationVersion, error) {
	var currentVersion time.Time
	row := conn.QueryRow(ctx, "SELECT version FROM jf_migration")
	err := row.Scan(&currentVersion)
	if err != nil {
		return types.MigrationVersion{}, err
	}
	currentVersion = currentVersion.UTC()

	return types.MigrationVersion(currentVersion), nil
}

func tryGetCurrentVersion(ctx context.Context) types.MigrationVersion {
	conn, err := db.NewConn(ctx)
	if err != nil {
		return types.MigrationVersion{}
	}
	defer conn.Close(ctx)

	currentVersion, _ := getCurrentVersion(ctx, conn)
	return currentVersion
}

func ListMigrations() {
	ctx := context.Background()

	currentVersion := tryGetCurrentVersion(ctx)
	for _, version := range getSortedMigrationVersions() {
		migration := migrations.All[version]
		indicator := "  "
		if version.Equal(currentVersion) {
			indicator = "✔ "
		}
		fmt.Printf("%s%v (%s: %s)\n", indicator, version, migration.Name(), migration.Description())
	}
}

// Finds where the current and target versions sit in the sorted version list.
// An index of -1 for current means nothing has been applied yet.
func migrationRange(allVersions []types.MigrationVersion, current, target types.MigrationVersion) (currentIndex, targetIndex int, err error) {
	currentIndex = -1
	targetIndex = -1
	for i, version := range allVersions {
		if current.Equal(version) {
			currentIndex = i
		}
		if target.Equal(version) {
			targetIndex = i
		}
	}

	if targetIndex < 0 {
		return 0, 0, oops.New(nil, "could not find migration with version %v", target)
	}
	if currentIndex < 0 && !current.IsZero() {
		return 0, 0, oops.New(nil, "database is at unknown migration version %v", current)
	}
	return currentIndex, targetIndex, nil
}

// Migrates the database forward or backward to targetVersion. A zero version
// means the latest one. Each migration runs in its own transaction.
func Migrate(targetVersion types.MigrationVersion) error {
	ctx := context.Background()

	conn, err := db.NewConn(ctx)
	if err != nil {
		return err
	}
	defer conn.Close(ctx)

	_, err = conn.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS jf_migration (
			version		TIMESTAMP WITH TIME ZONE
		)
	`)
	if err != nil {
		return oops.New(err, "failed to create migration table")
	}

	numRows, err := db.QueryOneScalar[int64](ctx, conn, "SELECT COUNT(*) FROM jf_migration")
	if err != nil {
		return oops.New(err, "failed to count migration rows")
	}
	if numRows < 1 {
		_, err := conn.Exec(ctx, "INSERT INTO jf_migration (version) VALUES ($1)", time.Time{})
		if err != nil {
			return oops.New(err, "failed to insert initial migration row")
		}
	}

	currentVersion, err := getCurrentVersion(ctx, conn)
	if err != nil {
		return oops.New(err, "failed to get current version")
	}
	if currentVersion.IsZero() {
		fmt.Println("This is the first time you have run database migrations.")
	} else {
		fmt.Printf("Current version: %s\n", currentVersion.String())
	}

	allVersions := getSortedMigrationVersions()
	if targetVersion.IsZero() {
		targetVersion = allVersions[len(allVersions)-1]
	}

	currentIndex, targetIndex, err := migrationRange(allVersions, currentVersion, targetVersion)
	if err != nil {
		return err
	}

	if currentIndex < targetIndex {
		for i := currentIndex + 1; i <= targetIndex; i++ {
			version := allVersions[i]
			migration := migrations.All[version]
			fmt.Printf("Applying migration %v (%v)\n", version, migration.Name())

			if err := applyInTx(ctx, conn, version, migration.Up); err != nil {
				return oops.New(err, "migration %v failed", version)
			}
		}
	} else if currentIndex > targetIndex {
		for i := currentIndex; i > targetIndex; i-- {
			version := allVersions[i]
			previousVersion := types.MigrationVersion{}
			if i > 0 {
				previousVersion = allVersions[i-1]
			}

			fmt.Printf("Rolling back migration %v\n", version)
			migration := migrations.All[version]
			if err := applyInTx(ctx, conn, previousVersion, migration.Down); err != nil {
				return oops.New(err, "rollback of migration %v failed", version)
			}
		}
	} else {
		fmt.Println("Already migrated; nothing to do.")
	}

	return nil
}

// Runs step and records newVersion in one transaction.
func applyInTx(ctx context.Context, conn *pgx.Conn, newVersion types.MigrationVersion, step func(context.Context, pgx.Tx) error) (err error) {
	tx, err := conn.Begin(ctx)
	if err != nil {
		return oops.New(err, "failed to start transaction")
	}
	defer tx.Rollback(ctx)

	err = func() (err error) {
		defer utils.RecoverPanicAsError(&err)
		return step(ctx, tx)
	}()
	if err != nil {
		return err
	}

	_, err = tx.Exec(ctx, "UPDATE jf_migration SET version = $1", time.Time(newVersion))
	if err != nil {
		return oops.New(err, "failed to update version in migrations table")
	}

	return tx.Commit(ctx)
}

//go:embed migrationTemplate.txt
var migrationTemplate string

func renderMigration(name, description string, now time.Time) string {
	result := migrationTemplate
	result = strings.ReplaceAll(result, "%NAME%", name)
	result = strings.ReplaceAll(result, "%DESCRIPTION%", fmt.Sprintf("%#v", description))

	nowConstructor := fmt.Sprintf("time.Date(%d, %d, %d, %d, %d, %d, 0, time.UTC)", now.Year(), now.Month(), now.Day(), now.Hour(), now.Minute(), now.Second())
	result = strings.ReplaceAll(result, "%DATE%", nowConstructor)
	return result
}

func migrationFilename(name string, now time.Time) string {
	safeVersion := strings.ReplaceAll(types.MigrationVersion(now).String(), ":", "")
	return fmt.Sprintf("%v_%v.go", safeVersion, name)
}

func MakeMigration(name, description string) {
	now := time.Now().UTC()
	path := filepath.Join("src", "migration", "migrations", migrationFilename(name, now))

	err := os.WriteFile(path, []byte(renderMigration(name, description, now)), 0644)
	if err != nil {
		panic(fmt.Errorf("failed to write migration file: %w", err))
	}

	fmt.Println("Successfully created migration file:")
	fmt.Println(path)
}
