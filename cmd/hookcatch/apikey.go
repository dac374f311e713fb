package main

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/rsclarke/hookcatch/internal/auth"
	"github.com/rsclarke/hookcatch/internal/db"
)

var apikeyFlags struct {
	dbPath string
	label  string
}

var apikeyCmd = &cobra.Command{
	Use:   "apikey",
	Short: "Manage dashboard API keys in the local database",
}

var apikeyCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create an API key and print it once",
	Args:  cobra.NoArgs,
	RunE:  runAPIKeyCreate,
}

var apikeyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List API keys",
	Args:  cobra.NoArgs,
	RunE:  runAPIKeyList,
}

var apikeyRevokeCmd = &cobra.Command{
	Use:   "revoke <prefix>",
	Short: "Revoke an API key by its prefix",
	Args:  cobra.ExactArgs(1),
	RunE:  runAPIKeyRevoke,
}

func init() {
	rootCmd.AddCommand(apikeyCmd)
	apikeyCmd.AddCommand(apikeyCreateCmd, apikeyListCmd, apikeyRevokeCmd)

	apikeyCmd.PersistentFlags().StringVar(&apikeyFlags.dbPath, "db", "", "database path (defaults to the configured db)")
	apikeyCreateCmd.Flags().StringVar(&apikeyFlags.label, "label", "", "optional label for the key")
}

func openKeyDB() (*sql.DB, error) {
	path := apikeyFlags.dbPath
	if path == "" {
		cfg, err := loadConfig()
		if err != nil {
			return nil, err
		}
		path = cfg.DBPath
	}
	database, err := db.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return database, nil
}

func runAPIKeyCreate(cmd *cobra.Command, args []string) error {
	database, err := openKeyDB()
	if err != nil {
		return err
	}
	defer database.Close()

	var label *string
	if apikeyFlags.label != "" {
		label = &apikeyFlags.label
	}
	displayKey, err := auth.IssueAPIKey(database, label)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), displayKey)
	return err
}

func runAPIKeyList(cmd *cobra.Command, args []string) error {
	database, err := openKeyDB()
	if err != nil {
		return err
	}
	defer database.Close()

	keys, err := db.ListAPIKeys(database)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(keys) == 0 {
		fmt.Fprintln(out, "No API keys found.")
		return nil
	}

	fmt.Fprintf(out, "%-14s  %-16s  %-19s  %s\n", "PREFIX", "LABEL", "CREATED", "STATUS")
	for _, k := range keys {
		label := "-"
		if k.Label != nil {
			label = *k.Label
		}
		status := "active"
		if k.RevokedAt != nil {
			status = dim("revoked " + time.Unix(*k.RevokedAt, 0).Format("2006-01-02"))
		}
		created := time.Unix(k.CreatedAt, 0).Format("2006-01-02 15:04:05")
		fmt.Fprintf(out, "%-14s  %-16s  %-19s  %s\n", k.KeyPrefix, label, created, status)
	}
	return nil
}

func runAPIKeyRevoke(cmd *cobra.Command, args []string) error {
	database, err := openKeyDB()
	if err != nil {
		return err
	}
	defer database.Close()

	revoked, err := db.RevokeAPIKey(database, args[0])
	if err != nil {
		return err
	}
	if !revoked {
		return fmt.Errorf("no active API key with prefix %q", args[0])
	}
	_, err = fmt.Fprintf(cmd.OutOrStdout(), "revoked %s\n", args[0])
	return err
}
