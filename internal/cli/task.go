package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"
)

// NewTaskCmd создаёт группу команд для управления задачами.
func NewTaskCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "task",
		Short: "Manage tasks",
	}

	cmd.AddCommand(
		newTaskListCmd(clientFn, outputFn),
		newTaskSubmitCmd(clientFn, outputFn),
		newTaskShowCmd(clientFn, outputFn),
		newTaskUnitsCmd(clientFn, outputFn),
	)

	return cmd
}

func newTaskListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			tasks, err := client.ListTasks()
			if err != nil {
				return err
			}

			headers := []string{"ID", "TYPE", "STATUS", "UNITS", "CREATED"}
			rows := make([][]string, len(tasks))
			for i, t := range tasks {
				rows[i] = []string{t.ID, t.Type, t.Status, strconv.Itoa(t.UnitCount), t.CreatedAt}
			}

			out.Print(headers, rows, tasks)
			return nil
		},
	}
}

func newTaskSubmitCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var taskType string
	var payload string
	var payloadFile string

	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit a new task",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			p, err := parsePayload(payload, payloadFile)
			if err != nil {
				return err
			}

			task, err := client.SubmitTask(SubmitTaskRequest{
				Type:    taskType,
				Payload: p,
			})
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Task submitted: %s", task.ID))
			out.Print(
				[]string{"ID", "TYPE", "STATUS", "CREATED"},
				[][]string{{task.ID, task.Type, task.Status, task.CreatedAt}},
				task,
			)
			return nil
		},
	}

	cmd.Flags().StringVar(&taskType, "type", "", "Task type (required)")
	cmd.Flags().StringVar(&payload, "payload", "", "Task payload as inline JSON")
	cmd.Flags().StringVar(&payloadFile, "payload-file", "", "Path to payload JSON file")
	cmd.MarkFlagRequired("type")

	return cmd
}

func newTaskShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show task details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			task, err := client.GetTask(args[0])
			if err != nil {
				return err
			}

			out.Print(
				[]string{"ID", "TYPE", "STATUS", "UNITS", "ERROR", "CREATED", "FINISHED"},
				[][]string{{
					task.ID, task.Type, task.Status, strconv.Itoa(task.UnitCount),
					task.FailureReason, task.CreatedAt, task.FinishedAt,
				}},
				task,
			)
			return nil
		},
	}
}

func newTaskUnitsCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "units TASK_ID",
		Short: "List work units of a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			units, err := client.ListTaskUnits(args[0])
			if err != nil {
				return err
			}

			headers := []string{"ORDINAL", "ID", "STATUS", "WEAVER", "RETRIES", "ERROR"}
			rows := make([][]string, len(units))
			for i, u := range units {
				rows[i] = []string{
					strconv.Itoa(u.Ordinal), u.ID, u.Status,
					u.AssignedWeaver, strconv.Itoa(u.RetryCount), u.Error,
				}
			}

			out.Print(headers, rows, units)
			return nil
		},
	}
}

// parsePayload читает payload из инлайн-JSON либо из файла.
func parsePayload(inline, file string) (map[string]any, error) {
	if inline != "" && file != "" {
		return nil, fmt.Errorf("--payload and --payload-file are mutually exclusive")
	}

	var data []byte
	switch {
	case inline != "":
		data = []byte(inline)
	case file != "":
		b, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("failed to read payload file: %w", err)
		}
		data = b
	default:
		return nil, nil
	}

	var payload map[string]any
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("payload is not a valid JSON object: %w", err)
	}
	return payload, nil
}
