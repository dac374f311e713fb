package main

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

var deleteFlags struct {
	clientConfig
}

var deleteCmd = &cobra.Command{
	Use:   "delete <date> [index]",
	Short: "Delete a day file or one request in it",
	Long: `Delete a whole day file, or with an index only that request.
Later requests in the file shift down by one.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runDelete,
}

func init() {
	rootCmd.AddCommand(deleteCmd)

	addClientFlags(deleteCmd, &deleteFlags.clientConfig)
}

func runDelete(cmd *cobra.Command, args []string) error {
	c, err := deleteFlags.newClient()
	if err != nil {
		return err
	}

	date := args[0]
	result := struct {
		Date    string `json:"date"`
		Index   *int   `json:"index,omitempty"`
		Deleted bool   `json:"deleted"`
	}{Date: date}

	if len(args) == 2 {
		index, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid index %q", args[1])
		}
		if err := c.DeleteRequest(cmd.Context(), date, index); err != nil {
			return err
		}
		result.Index = &index
	} else {
		if err := c.DeleteFile(cmd.Context(), date); err != nil {
			return err
		}
	}
	result.Deleted = true

	b, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}

	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(b))
	return err
}
