package main

import (
	"fmt"
	"os"

	"github.com/dinewithlocals/backend/internal/config"
	"github.com/dinewithlocals/backend/internal/database"
	"github.com/dinewithlocals/backend/internal/logger"
	"github.com/dinewithlocals/backend/internal/seed"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

var (
	userCount int
	confirmed bool
)

var (
	ok   = color.New(color.FgGreen, color.Bold)
	warn = color.New(color.FgYellow)
	fail = color.New(color.FgRed, color.Bold)
	info = color.New(color.FgCyan)
)

var rootCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed the Dine with Locals database",
	Long: `seed fills a development database with fake users, locations,
listings, requests, matches and blog posts, or wipes it clean.`,
	SilenceUsage: true,
}

var devCmd = &cobra.Command{
	Use:   "dev",
	Short: "Seed the development database with realistic data",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := connect()
		if err != nil {
			return err
		}
		defer database.Close(db)

		info.Printf("Seeding %d users...\n", userCount)
		stats, err := seed.NewSeeder(db).SeedDev(seed.Options{Users: userCount})
		if err != nil {
			return err
		}

		ok.Println("Development database seeded")
		fmt.Printf("  users:    %d\n", stats.Users)
		fmt.Printf("  listings: %d\n", stats.Listings)
		fmt.Printf("  requests: %d\n", stats.Requests)
		fmt.Printf("  matches:  %d\n", stats.Matches)
		fmt.Printf("  blogs:    %d (%d comments, %d likes)\n", stats.Blogs, stats.Comments, stats.Likes)
		info.Printf("Every account uses the password %q\n", seed.DefaultPassword)
		return nil
	},
}

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Delete all rows from every table (use with caution)",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !confirmed {
			warn.Println("This deletes every row in the database. Re-run with --yes to confirm.")
			return nil
		}
		db, err := connect()
		if err != nil {
			return err
		}
		defer database.Close(db)

		if err := seed.NewSeeder(db).Clean(); err != nil {
			return err
		}
		ok.Println("Database cleaned")
		return nil
	},
}

func connect() (*gorm.DB, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := logger.Initialize(cfg.LogLevel, cfg.LogFile); err != nil {
		return nil, err
	}
	return database.InitDB(cfg.DatabaseURL)
}

func init() {
	devCmd.Flags().IntVar(&userCount, "users", 50, "Number of users to create")
	cleanCmd.Flags().BoolVar(&confirmed, "yes", false, "Confirm deleting all data")

	rootCmd.AddCommand(devCmd)
	rootCmd.AddCommand(cleanCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fail.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
