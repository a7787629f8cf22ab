package cli

import (
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

// NewWeaverCmd создаёт группу команд для наблюдения за воркерами.
func NewWeaverCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "weaver",
		Short: "Inspect weavers",
	}

	cmd.AddCommand(
		newWeaverListCmd(clientFn, outputFn),
		newWeaverShowCmd(clientFn, outputFn),
	)

	return cmd
}

func newWeaverListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered weavers",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			weavers, err := client.ListWeavers()
			if err != nil {
				return err
			}

			headers := []string{"ID", "ADDRESS", "CAPABILITIES", "LIVE", "CURRENT_UNIT", "LAST_SEEN"}
			rows := make([][]string, len(weavers))
			for i, w := range weavers {
				rows[i] = []string{
					w.ID, w.Address, strings.Join(w.Capabilities, ","),
					strconv.FormatBool(w.Live), w.CurrentUnit, w.LastSeen,
				}
			}

			out.Print(headers, rows, weavers)
			return nil
		},
	}
}

func newWeaverShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show weaver details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			weaver, err := client.GetWeaver(args[0])
			if err != nil {
				return err
			}

			out.Print(
				[]string{"ID", "ADDRESS", "CAPABILITIES", "LIVE", "CURRENT_UNIT", "REGISTERED", "LAST_SEEN"},
				[][]string{{
					weaver.ID, weaver.Address, strings.Join(weaver.Capabilities, ","),
					strconv.FormatBool(weaver.Live), weaver.CurrentUnit,
					weaver.RegisteredAt, weaver.LastSeen,
				}},
				weaver,
			)
			return nil
		},
	}
}
