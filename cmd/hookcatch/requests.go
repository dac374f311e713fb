package main

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/rsclarke/hookcatch/internal/query"
)

var requestsFlags struct {
	clientConfig
	method      string
	contentType string
	search      string
	page        int
	json        bool
}

var requestsCmd = &cobra.Command{
	Use:   "requests <date>",
	Short: "List captured requests for a day",
	Long: `List the captured requests of one day file, ten per page.

The date is YYYY-MM-DD (a trailing .json is accepted). INDEX is the position
in the day file and is what "hookcatch delete" expects.`,
	Args: cobra.ExactArgs(1),
	RunE: runRequests,
}

func init() {
	rootCmd.AddCommand(requestsCmd)

	addClientFlags(requestsCmd, &requestsFlags.clientConfig)
	f := requestsCmd.Flags()
	f.StringVar(&requestsFlags.method, "method", "", "only requests with this exact method")
	f.StringVar(&requestsFlags.contentType, "content-type", "", "only requests whose content type contains this")
	f.StringVarP(&requestsFlags.search, "search", "q", "", "free-text search over method, path, content type and remote IP")
	f.IntVar(&requestsFlags.page, "page", 1, "page number")
	f.BoolVar(&requestsFlags.json, "json", false, "print the page as JSON")
}

func runRequests(cmd *cobra.Command, args []string) error {
	c, err := requestsFlags.newClient()
	if err != nil {
		return err
	}

	f := query.Filter{
		Method:      strings.ToUpper(requestsFlags.method),
		ContentType: requestsFlags.contentType,
		Search:      requestsFlags.search,
	}
	page, err := c.QueryRequests(cmd.Context(), args[0], f, requestsFlags.page)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if requestsFlags.json {
		b, err := json.MarshalIndent(page, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(out, string(b))
		return err
	}

	if len(page.Items) == 0 {
		fmt.Fprintln(out, "No matching requests.")
		return nil
	}

	fmt.Fprintf(out, "%5s  %-7s  %-8s  %-15s  %-30s  %s\n", "INDEX", "METHOD", "TIME", "REMOTE IP", "CONTENT TYPE", "PATH")
	for _, it := range page.Items {
		r := it.Record
		ct := r.ContentType
		if ct == "" {
			ct = "-"
		}
		fmt.Fprintf(out, "%5d  %s  %-8s  %-15s  %-30s  %s\n",
			it.Index,
			colorMethod(r.Method, 7),
			time.UnixMilli(r.CreatedAt).Format("15:04:05"),
			r.RemoteIP,
			ct,
			r.Path)
	}

	fmt.Fprintln(out, dim(fmt.Sprintf("page %d of %d (%d of %d requests) pages: %s",
		page.Page, page.TotalPages, page.Filtered, page.Total, pageList(page))))
	return nil
}

func pageList(p *query.Page) string {
	parts := make([]string, 0, len(p.VisiblePages))
	for _, n := range p.VisiblePages {
		s := strconv.Itoa(n)
		if n == p.Page {
			s = "[" + s + "]"
		}
		parts = append(parts, s)
	}
	return strings.Join(parts, " ")
}
