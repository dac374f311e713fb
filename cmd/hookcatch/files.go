package main

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var filesFlags struct {
	clientConfig
	json bool
}

var filesCmd = &cobra.Command{
	Use:   "files",
	Short: "List day files with request counts",
	Long:  `List every day file, newest first, with its size, request count and method breakdown.`,
	Args:  cobra.NoArgs,
	RunE:  runFiles,
}

func init() {
	rootCmd.AddCommand(filesCmd)

	addClientFlags(filesCmd, &filesFlags.clientConfig)
	filesCmd.Flags().BoolVar(&filesFlags.json, "json", false, "print raw JSON")
}

func runFiles(cmd *cobra.Command, args []string) error {
	c, err := filesFlags.newClient()
	if err != nil {
		return err
	}

	files, err := c.ListFiles(cmd.Context())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if filesFlags.json {
		b, err := json.MarshalIndent(files, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(out, string(b))
		return err
	}

	if len(files) == 0 {
		fmt.Fprintln(out, "No captured requests.")
		return nil
	}

	fmt.Fprintf(out, "%-10s  %8s  %8s  %-19s  %s\n", "DATE", "REQUESTS", "SIZE", "LAST REQUEST", "METHODS")
	for _, f := range files {
		last := "-"
		if f.LastRequest > 0 {
			last = humanize.Time(time.UnixMilli(f.LastRequest))
		}
		fmt.Fprintf(out, "%-10s  %8d  %8s  %-19s  %s\n", f.Date, f.Requests, humanize.Bytes(uint64(f.Size)), last, methodSummary(f.Methods))
	}
	return nil
}

func methodSummary(methods map[string]int) string {
	parts := make([]string, 0, len(methods))
	for _, m := range slices.Sorted(maps.Keys(methods)) {
		parts = append(parts, fmt.Sprintf("%s:%d", colorMethod(m, 0), methods[m]))
	}
	return strings.Join(parts, " ")
}
