package commands

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/marmos91/relaystream/internal/cli/output"
	"github.com/marmos91/relaystream/internal/cli/prompt"
	"github.com/marmos91/relaystream/pkg/apiclient"
)

// Flags shared by the commands that talk to a running server.
var (
	serverURL    string
	adminToken   string
	outputFormat string
	assumeYes    bool
)

func addClientFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().StringVar(&serverURL, "server", envOr("RELAYSTREAM_SERVER", "http://localhost:8080"), "Server URL (env RELAYSTREAM_SERVER)")
	cmd.PersistentFlags().StringVar(&adminToken, "token", os.Getenv("RELAYSTREAM_TOKEN"), "Admin token (env RELAYSTREAM_TOKEN)")
	cmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "table", "Output format (table, json, yaml)")
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func newClient() *apiclient.Client {
	c := apiclient.New(serverURL)
	if adminToken != "" {
		c = c.WithToken(adminToken)
	}
	return c
}

func requestContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), 30*time.Second)
}

func printResult(cmd *cobra.Command, data any, table output.TableRenderer) error {
	format, err := output.ParseFormat(outputFormat)
	if err != nil {
		return err
	}
	return output.Print(cmd.OutOrStdout(), format, data, table)
}

var workersCmd = &cobra.Command{
	Use:   "workers",
	Short: "Show upstream worker load and cooldowns",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := requestContext(cmd)
		defer cancel()

		resp, err := newClient().Workers(ctx)
		if err != nil {
			return err
		}

		table := output.NewTable("ID", "NAME", "IN FLIGHT", "FAILURES", "ACQUIRED", "COOLDOWN")
		for _, w := range resp.Workers {
			cooldown := "-"
			if w.CoolingDown && w.CooldownUntil != nil {
				cooldown = humanize.Time(*w.CooldownUntil)
			}
			table.AddRow(
				strconv.Itoa(w.ID),
				w.Name,
				strconv.Itoa(w.InFlight),
				strconv.Itoa(w.Failures),
				humanize.Comma(int64(w.Acquired)),
				cooldown,
			)
		}
		return printResult(cmd, resp, table)
	},
}

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect or purge the chunk cache",
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show chunk cache occupancy and hit rate",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := requestContext(cmd)
		defer cancel()

		stats, err := newClient().CacheStats(ctx)
		if err != nil {
			return err
		}

		format, err := output.ParseFormat(outputFormat)
		if err != nil {
			return err
		}
		if format != output.FormatTable {
			return output.Print(cmd.OutOrStdout(), format, stats, nil)
		}

		hitRate := "-"
		if total := stats.Hits + stats.Misses; total > 0 {
			hitRate = fmt.Sprintf("%.1f%%", float64(stats.Hits)*100/float64(total))
		}
		output.PrintPairs(cmd.OutOrStdout(), [][2]string{
			{"Type", stats.Type},
			{"Entries", humanize.Comma(int64(stats.Entries))},
			{"Used", humanize.IBytes(uint64(stats.Bytes))},
			{"Capacity", humanize.IBytes(uint64(stats.Capacity))},
			{"Hit rate", hitRate},
			{"Evictions", humanize.Comma(int64(stats.Evictions))},
		})
		return nil
	},
}

var cachePurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Drop every cached chunk",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ok, err := prompt.ConfirmWithForce("Purge the chunk cache on "+serverURL, assumeYes)
		if err != nil || !ok {
			return err
		}

		ctx, cancel := requestContext(cmd)
		defer cancel()

		resp, err := newClient().PurgeCache(ctx)
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Purged %s chunks (%s)\n",
			humanize.Comma(int64(resp.Data.PurgedEntries)),
			humanize.IBytes(uint64(resp.Data.PurgedBytes)))
		return nil
	},
}

var filesCmd = &cobra.Command{
	Use:   "files",
	Short: "Manage registered file records",
}

func filesTable(files []apiclient.File) *output.Table {
	table := output.NewTable("ID", "NAME", "SIZE", "LINK", "ADDED")
	for _, f := range files {
		table.AddRow(f.ID, f.FileName, humanize.IBytes(uint64(f.Size)), f.Link, humanize.Time(f.CreatedAt))
	}
	return table
}

var filesListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List registered files",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := requestContext(cmd)
		defer cancel()

		files, err := newClient().ListFiles(ctx)
		if err != nil {
			return err
		}
		return printResult(cmd, files, filesTable(files))
	},
}

var (
	addName string
	addMime string
)

var filesAddCmd = &cobra.Command{
	Use:   "add <container-id> <item-id>",
	Short: "Register a file and print its links",
	Long: `Register an upstream file. Name, size and MIME type are looked up
upstream unless given.

Examples:
  relaystream files add -- -100123 7
  relaystream files add -- -100123 8 --name movie.srt`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cid, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid container id %q", args[0])
		}
		iid, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid item id %q", args[1])
		}

		ctx, cancel := requestContext(cmd)
		defer cancel()

		f, err := newClient().CreateFile(ctx, &apiclient.CreateFileRequest{
			FileName:    addName,
			ContainerID: cid,
			ItemID:      iid,
			MimeType:    addMime,
		})
		if err != nil {
			return err
		}
		return printResult(cmd, f, filesTable([]apiclient.File{*f}))
	},
}

var filesRemoveCmd = &cobra.Command{
	Use:     "remove <id>",
	Aliases: []string{"rm"},
	Short:   "Delete a file record",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ok, err := prompt.ConfirmWithForce("Delete file record "+args[0], assumeYes)
		if err != nil || !ok {
			return err
		}

		ctx, cancel := requestContext(cmd)
		defer cancel()

		if err := newClient().DeleteFile(ctx, args[0]); err != nil {
			return err
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
		return nil
	},
}

var detailsCmd = &cobra.Command{
	Use:   "details <link>",
	Short: "Show public metadata for a link token",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := requestContext(cmd)
		defer cancel()

		d, err := newClient().Details(ctx, args[0])
		if err != nil {
			return err
		}

		format, err := output.ParseFormat(outputFormat)
		if err != nil {
			return err
		}
		if format != output.FormatTable {
			return output.Print(cmd.OutOrStdout(), format, d, nil)
		}

		subtitle := "-"
		if d.SubtitleURL != nil {
			subtitle = *d.SubtitleURL
		}
		output.PrintPairs(cmd.OutOrStdout(), [][2]string{
			{"Name", d.FileName},
			{"Size", d.FileSize},
			{"Type", d.MimeType},
			{"Stream", newClient().BaseURL() + "/stream/" + args[0]},
			{"Subtitle", subtitle},
		})
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{workersCmd, cacheCmd, filesCmd, detailsCmd} {
		addClientFlags(c)
	}

	cachePurgeCmd.Flags().BoolVarP(&assumeYes, "yes", "y", false, "Do not ask for confirmation")
	cacheCmd.AddCommand(cacheStatsCmd, cachePurgeCmd)

	filesAddCmd.Flags().StringVar(&addName, "name", "", "File name (default: looked up upstream)")
	filesAddCmd.Flags().StringVar(&addMime, "mime-type", "", "MIME type (default: guessed from the name)")
	filesRemoveCmd.Flags().BoolVarP(&assumeYes, "yes", "y", false, "Do not ask for confirmation")
	filesCmd.AddCommand(filesListCmd, filesAddCmd, filesRemoveCmd)
}
