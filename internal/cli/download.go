package cli

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

// Commands возвращает команды управления загрузками.
func Commands(clientFn func() *Client, outputFn func() *Output) []*cobra.Command {
	return []*cobra.Command{
		newEnqueueCmd(clientFn, outputFn),
		newListCmd(clientFn, outputFn),
		newShowCmd(clientFn, outputFn),
		newCancelCmd(clientFn, outputFn),
		newRemoveCmd(clientFn, outputFn),
		newWatchCmd(clientFn, outputFn),
		newResultsCmd(clientFn, outputFn),
		newStatsCmd(clientFn, outputFn),
	}
}

var taskHeaders = []string{"ID", "STATE", "PROGRESS", "URL", "DESTINATION"}

func taskRow(t TaskResponse) []string {
	return []string{t.ID, t.State.Kind, formatProgress(t), t.URL, t.Destination}
}

// formatProgress — "42% (420/1000)" для DOWNLOADING, "-" иначе.
func formatProgress(t TaskResponse) string {
	if t.State.Kind != "DOWNLOADING" {
		return "-"
	}
	if t.State.TotalBytes <= 0 {
		return strconv.FormatInt(t.State.BytesWritten, 10) + " B"
	}
	return fmt.Sprintf("%d%% (%d/%d)", t.Percentage, t.State.BytesWritten, t.State.TotalBytes)
}

func newEnqueueCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var id string

	cmd := &cobra.Command{
		Use:   "enqueue URL DESTINATION",
		Short: "Enqueue a download",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			task, err := client.Enqueue(EnqueueRequest{
				ID:          id,
				URL:         args[0],
				Destination: args[1],
			})
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Download enqueued: %s", task.ID))
			out.Print(taskHeaders, [][]string{taskRow(*task)}, task)
			return nil
		},
	}

	cmd.Flags().StringVar(&id, "id", "", "Download ID (generated if not specified)")

	return cmd
}

func newListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var ids []string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List downloads",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			tasks, err := client.ListDownloads(ids)
			if err != nil {
				return err
			}

			rows := make([][]string, len(tasks))
			for i, t := range tasks {
				rows[i] = taskRow(t)
			}

			out.Print(taskHeaders, rows, tasks)
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&ids, "ids", nil, "Only these download IDs")

	return cmd
}

func newShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show download details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			task, err := client.GetDownload(args[0])
			if err != nil {
				return err
			}

			out.Print(
				append(taskHeaders, "UPDATED"),
				[][]string{append(taskRow(*task), task.UpdatedAt)},
				task,
			)
			return nil
		},
	}
}

func newCancelCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "cancel [ID]",
		Short: "Cancel a download (or all with --all)",
		Args:  idOrAll(&all),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			if all {
				if err := client.CancelAll(); err != nil {
					return err
				}
				out.Success("All downloads cancelled")
				return nil
			}

			if err := client.Cancel(args[0]); err != nil {
				return err
			}
			out.Success(fmt.Sprintf("Download cancelled: %s", args[0]))
			return nil
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "Cancel all downloads")

	return cmd
}

func newRemoveCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var all bool
	var deleteFile bool

	cmd := &cobra.Command{
		Use:     "rm [ID]",
		Aliases: []string{"remove"},
		Short:   "Remove a download record (or all with --all)",
		Args:    idOrAll(&all),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			if all {
				if err := client.RemoveAll(deleteFile); err != nil {
					return err
				}
				out.Success("All downloads removed")
				return nil
			}

			if err := client.Remove(args[0], deleteFile); err != nil {
				return err
			}
			out.Success(fmt.Sprintf("Download removed: %s", args[0]))
			return nil
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "Remove all downloads")
	cmd.Flags().BoolVar(&deleteFile, "delete-file", false, "Also delete the destination file")

	return cmd
}

func newResultsCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "results",
		Short: "Stream final download results",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			return client.WatchResults(cmd.Context(), func(res ResultResponse) error {
				if out.Structured() {
					out.Print(nil, nil, res)
					return nil
				}
				if res.Error != "" {
					out.Line("%s\t%s\t%s", res.Request.ID, res.Kind, res.Error)
				} else {
					out.Line("%s\t%s", res.Request.ID, res.Kind)
				}
				return nil
			})
		},
	}
}

func newStatsCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show scheduler load",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			stats, err := client.Stats()
			if err != nil {
				return err
			}

			out.Print(
				[]string{"RUNNING", "QUEUED", "LIMIT"},
				[][]string{{strconv.Itoa(stats.Running), strconv.Itoa(stats.Queued), strconv.Itoa(stats.Limit)}},
				stats,
			)
			return nil
		},
	}
}

// idOrAll требует ровно один ID без --all и ни одного с --all.
func idOrAll(all *bool) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if *all {
			if len(args) != 0 {
				return errors.New("no ID expected with --all")
			}
			return nil
		}
		return cobra.ExactArgs(1)(cmd, args)
	}
}
