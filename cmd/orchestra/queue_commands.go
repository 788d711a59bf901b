package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"orchestra/internal/config"
	"orchestra/internal/criteria"
	"orchestra/internal/queue"
	"orchestra/internal/task"
)

func newQueueCommand(ctx *commandContext) *cobra.Command {
	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and manage task files",
	}

	queueCmd.AddCommand(newQueueListCommand(ctx))
	queueCmd.AddCommand(newQueueStatusCommand(ctx))
	queueCmd.AddCommand(newQueueAddCommand(ctx))
	queueCmd.AddCommand(newQueueRetryCommand(ctx))
	queueCmd.AddCommand(newQueueShowCommand(ctx))
	queueCmd.AddCommand(newQueueRemoveCommand(ctx))
	queueCmd.AddCommand(newQueueClearCommand(ctx))

	return queueCmd
}

type queueListRow struct {
	Name      string      `json:"name"`
	Class     task.Class  `json:"class"`
	Status    task.Status `json:"status,omitempty"`
	Model     string      `json:"model"`
	Workspace string      `json:"workspace"`
	Attempts  int         `json:"attempts"`
	UpdatedAt time.Time   `json:"updated_at,omitzero"`
	Error     string      `json:"error,omitempty"`
}

func newQueueListCommand(ctx *commandContext) *cobra.Command {
	var classFlags []string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List task files",
		RunE: func(cmd *cobra.Command, args []string) error {
			classes, err := parseClassFlags(classFlags)
			if err != nil {
				return err
			}
			return ctx.withStore(func(cfg *config.Config, store *queue.Store) error {
				defaults := task.Defaults{Model: cfg.Defaults.Model, Workspace: cfg.Defaults.Workspace}
				var rows []queueListRow
				for _, class := range classes {
					entries, err := store.List(class)
					if err != nil {
						return err
					}
					for _, entry := range entries {
						rows = append(rows, listRow(class, entry, defaults))
					}
				}

				if asJSON {
					if rows == nil {
						rows = []queueListRow{}
					}
					return writeJSON(cmd, rows)
				}
				out := cmd.OutOrStdout()
				if len(rows) == 0 {
					fmt.Fprintln(out, "No tasks found")
					return nil
				}
				colorize := shouldColorize(out)
				table := make([][]string, 0, len(rows))
				for _, r := range rows {
					status := colorizeStatus(r.Status, colorize)
					if r.Error != "" && r.Status == "" {
						status = "unreadable"
					}
					updated := "-"
					if !r.UpdatedAt.IsZero() {
						updated = r.UpdatedAt.Local().Format("2006-01-02 15:04:05")
					}
					table = append(table, []string{
						r.Name,
						string(r.Class),
						status,
						r.Model,
						r.Workspace,
						strconv.Itoa(r.Attempts),
						updated,
					})
				}
				fmt.Fprint(out, renderTable(
					[]string{"Name", "Location", "Status", "Model", "Workspace", "Attempts", "Updated"},
					table,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
				))
				return nil
			})
		},
	}

	cmd.Flags().StringSliceVar(&classFlags, "class", nil, "Limit to queued, completed, or failed (repeatable)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print as JSON")
	return cmd
}

func listRow(class task.Class, entry queue.Entry, defaults task.Defaults) queueListRow {
	row := queueListRow{Name: entry.Name, Class: class}
	if entry.Err != nil {
		row.Error = entry.Err.Error()
		return row
	}
	rec := entry.Record
	row.Status = rec.Status
	row.Model = rec.ResolvedModel(defaults)
	row.Workspace = rec.ResolvedWorkspace(defaults)
	row.Attempts = rec.Attempts
	row.UpdatedAt = rec.UpdatedAt
	row.Error = rec.Error
	return row
}

func parseClassFlags(values []string) ([]task.Class, error) {
	if len(values) == 0 {
		return task.AllClasses(), nil
	}
	seen := make(map[task.Class]struct{}, len(values))
	var classes []task.Class
	for _, value := range values {
		class, ok := task.ParseClass(value)
		if !ok {
			return nil, fmt.Errorf("invalid class %q (want queued, completed, or failed)", value)
		}
		if _, dup := seen[class]; dup {
			continue
		}
		seen[class] = struct{}{}
		classes = append(classes, class)
	}
	return classes, nil
}

type queueStatusView struct {
	Queued      int            `json:"queued"`
	Completed   int            `json:"completed"`
	Failed      int            `json:"failed"`
	Unreadable  int            `json:"unreadable"`
	Total       int            `json:"total"`
	SuccessRate float64        `json:"success_rate"`
	ByStatus    map[string]int `json:"queued_by_status"`
}

func newQueueStatusCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show task counts and success rate",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(_ *config.Config, store *queue.Store) error {
				stats, err := store.Stats()
				if err != nil {
					return err
				}
				view := queueStatusView{
					Queued:      stats.Queued,
					Completed:   stats.Completed,
					Failed:      stats.Failed,
					Unreadable:  stats.Unreadable,
					Total:       stats.Total(),
					SuccessRate: stats.SuccessRate(),
					ByStatus:    make(map[string]int, len(stats.ByStatus)),
				}
				for status, count := range stats.ByStatus {
					view.ByStatus[string(status)] = count
				}
				if asJSON {
					return writeJSON(cmd, view)
				}

				rows := [][]string{
					{"Queued", strconv.Itoa(view.Queued)},
				}
				for _, status := range task.AllStatuses() {
					if status.IsTerminal() {
						continue
					}
					if count := stats.ByStatus[status]; count > 0 {
						rows = append(rows, []string{"  " + statusLabel(status), strconv.Itoa(count)})
					}
				}
				if view.Unreadable > 0 {
					rows = append(rows, []string{"  Unreadable", strconv.Itoa(view.Unreadable)})
				}
				rows = append(rows,
					[]string{"Completed", strconv.Itoa(view.Completed)},
					[]string{"Failed", strconv.Itoa(view.Failed)},
					[]string{"Total", strconv.Itoa(view.Total)},
					[]string{"Success rate", fmt.Sprintf("%.1f%%", view.SuccessRate)},
				)
				fmt.Fprint(cmd.OutOrStdout(), renderTable(
					[]string{"Location", "Count"},
					rows,
					[]columnAlignment{alignLeft, alignRight},
				))
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print as JSON")
	return cmd
}

func newQueueAddCommand(ctx *commandContext) *cobra.Command {
	var (
		model     string
		workspace string
		contains  string
		minLength int
		body      string
		bodyFile  string
	)

	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Create a pending task in the queued directory",
		Long:  "Create a pending task. The body comes from --body, --file, or standard input.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text := body
			switch {
			case cmd.Flags().Changed("body"):
			case strings.TrimSpace(bodyFile) != "":
				data, err := os.ReadFile(bodyFile)
				if err != nil {
					return fmt.Errorf("read task body: %w", err)
				}
				text = string(data)
			default:
				data, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("read task body: %w", err)
				}
				text = string(data)
			}
			if strings.TrimSpace(text) == "" {
				return errors.New("task body is empty")
			}
			if !strings.HasSuffix(text, "\n") {
				text += "\n"
			}

			rec := &task.Record{
				Status:    task.StatusPending,
				Model:     strings.TrimSpace(model),
				Workspace: strings.TrimSpace(workspace),
				Body:      []byte(text),
			}
			spec := &criteria.Spec{}
			if cmd.Flags().Changed("contains") {
				spec.Contains = &contains
			}
			if cmd.Flags().Changed("min-length") {
				n := minLength
				spec.MinLength = &n
			}
			if err := spec.Validate(); err != nil {
				return err
			}
			if !spec.IsEmpty() {
				rec.Criteria = spec
			}

			return ctx.withStore(func(_ *config.Config, store *queue.Store) error {
				created, err := store.Create(args[0], rec)
				if err != nil {
					if errors.Is(err, queue.ErrCollision) {
						return fmt.Errorf("task %q already exists in the queued directory", args[0])
					}
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Queued %s (%s)\n", created.ID, criteria.Describe(created.Criteria))
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&model, "model", "", "Model for this task (default from config)")
	cmd.Flags().StringVar(&workspace, "workspace", "", "Workspace for this task (default from config)")
	cmd.Flags().StringVar(&contains, "contains", "", "Require the response to contain this text")
	cmd.Flags().IntVar(&minLength, "min-length", 0, "Require at least this many characters in the response")
	cmd.Flags().StringVar(&body, "body", "", "Task body")
	cmd.Flags().StringVar(&bodyFile, "file", "", "Read the task body from a file")
	cmd.MarkFlagsMutuallyExclusive("body", "file")
	return cmd
}

func newQueueRetryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry <name>...",
		Short: "Move failed tasks back to the queue as pending",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(_ *config.Config, store *queue.Store) error {
				out := cmd.OutOrStdout()
				var errs []error
				for _, name := range args {
					rec, err := store.Requeue(name)
					if err != nil {
						if errors.Is(err, fs.ErrNotExist) {
							fmt.Fprintf(out, "%s: not in the failed directory\n", name)
							errs = append(errs, err)
							continue
						}
						errs = append(errs, fmt.Errorf("retry %s: %w", name, err))
						continue
					}
					fmt.Fprintf(out, "Requeued %s\n", rec.ID)
				}
				return errors.Join(errs...)
			})
		},
	}
}

func newQueueRemoveCommand(ctx *commandContext) *cobra.Command {
	var classFlag string
	var force bool

	cmd := &cobra.Command{
		Use:   "remove <name>...",
		Short: "Delete task files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var class task.Class
			if classFlag != "" {
				parsed, ok := task.ParseClass(classFlag)
				if !ok {
					return fmt.Errorf("invalid class %q (want queued, completed, or failed)", classFlag)
				}
				class = parsed
			}
			return ctx.withStore(func(_ *config.Config, store *queue.Store) error {
				out := cmd.OutOrStdout()
				var errs []error
				for _, name := range args {
					path, err := store.Remove(name, class, force)
					switch {
					case errors.Is(err, fs.ErrNotExist):
						fmt.Fprintf(out, "%s: not found\n", name)
						errs = append(errs, err)
					case errors.Is(err, queue.ErrTaskRunning):
						fmt.Fprintf(out, "%s: running; pass --force to remove it anyway\n", name)
						errs = append(errs, err)
					case err != nil:
						errs = append(errs, fmt.Errorf("remove %s: %w", name, err))
					default:
						fmt.Fprintf(out, "Removed %s\n", path)
					}
				}
				return errors.Join(errs...)
			})
		},
	}

	cmd.Flags().StringVar(&classFlag, "class", "", "Only look in this class (queued, completed, failed)")
	cmd.Flags().BoolVar(&force, "force", false, "Remove tasks marked running")
	return cmd
}

func newQueueClearCommand(ctx *commandContext) *cobra.Command {
	var clearCompleted bool
	var clearFailed bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete every completed or failed task file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if clearCompleted == clearFailed {
				return errors.New("choose exactly one of --completed or --failed")
			}
			class := task.ClassFailed
			if clearCompleted {
				class = task.ClassCompleted
			}
			return ctx.withStore(func(_ *config.Config, store *queue.Store) error {
				removed, err := store.Clear(class)
				fmt.Fprintf(cmd.OutOrStdout(), "Cleared %d %s tasks\n", removed, class)
				return err
			})
		},
	}

	cmd.Flags().BoolVar(&clearCompleted, "completed", false, "Remove completed tasks")
	cmd.Flags().BoolVar(&clearFailed, "failed", false, "Remove failed tasks")
	return cmd
}

func newQueueShowCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "show <name>",
		Short: "Show one task's header, response, and error",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *queue.Store) error {
				rec, class, err := store.Locate(args[0])
				if err != nil {
					return err
				}
				defaults := task.Defaults{Model: cfg.Defaults.Model, Workspace: cfg.Defaults.Workspace}
				if asJSON {
					return writeJSON(cmd, showView(rec, class, defaults))
				}
				fmt.Fprint(cmd.OutOrStdout(), renderShow(rec, class, defaults, shouldColorize(cmd.OutOrStdout())))
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print as JSON")
	return cmd
}

type taskView struct {
	ID           string         `json:"id"`
	Path         string         `json:"path"`
	Class        task.Class     `json:"class"`
	Status       task.Status    `json:"status"`
	Model        string         `json:"model"`
	Workspace    string         `json:"workspace"`
	Criteria     *criteria.Spec `json:"completion_criteria,omitempty"`
	Attempts     int            `json:"attempts"`
	RunID        string         `json:"run_id,omitempty"`
	CreatedAt    time.Time      `json:"created_at,omitzero"`
	UpdatedAt    time.Time      `json:"updated_at,omitzero"`
	OriginalTask string         `json:"original_task,omitempty"`
	TaskType     string         `json:"task_type,omitempty"`
	StepNumber   int            `json:"step_number,omitempty"`
	Error        string         `json:"error,omitempty"`
	Response     *string        `json:"response,omitempty"`
	Extra        []string       `json:"extra_keys,omitempty"`
}

func showView(rec *task.Record, class task.Class, defaults task.Defaults) taskView {
	return taskView{
		ID:           rec.ID,
		Path:         rec.Path,
		Class:        class,
		Status:       rec.Status,
		Model:        rec.ResolvedModel(defaults),
		Workspace:    rec.ResolvedWorkspace(defaults),
		Criteria:     rec.Criteria,
		Attempts:     rec.Attempts,
		RunID:        rec.RunID,
		CreatedAt:    rec.CreatedAt,
		UpdatedAt:    rec.UpdatedAt,
		OriginalTask: rec.OriginalTask,
		TaskType:     rec.TaskType,
		StepNumber:   rec.StepNumber,
		Error:        rec.Error,
		Response:     rec.Response,
		Extra:        rec.ExtraKeys(),
	}
}

func renderShow(rec *task.Record, class task.Class, defaults task.Defaults, colorize bool) string {
	var b strings.Builder
	for _, line := range renderSectionHeader(rec.ID, colorize) {
		b.WriteString(line + "\n")
	}
	fields := [][2]string{
		{"Path", rec.Path},
		{"Location", string(class)},
		{"Status", colorizeStatus(rec.Status, colorize)},
		{"Model", rec.ResolvedModel(defaults)},
		{"Workspace", rec.ResolvedWorkspace(defaults)},
		{"Criteria", criteria.Describe(rec.Criteria)},
		{"Attempts", strconv.Itoa(rec.Attempts)},
	}
	if rec.RunID != "" {
		fields = append(fields, [2]string{"Run ID", rec.RunID})
	}
	if !rec.UpdatedAt.IsZero() {
		fields = append(fields, [2]string{"Updated", rec.UpdatedAt.Local().Format(time.RFC3339)})
	}
	if rec.TaskType != "" {
		fields = append(fields, [2]string{"Type", rec.TaskType})
	}
	if rec.OriginalTask != "" {
		fields = append(fields, [2]string{"Follows", rec.OriginalTask})
	}
	if keys := rec.ExtraKeys(); len(keys) > 0 {
		sort.Strings(keys)
		fields = append(fields, [2]string{"Other keys", strings.Join(keys, ", ")})
	}
	for _, f := range fields {
		fmt.Fprintf(&b, "%-12s %s\n", f[0]+":", f[1])
	}
	if rec.Error != "" {
		fmt.Fprintf(&b, "%-12s %s\n", "Error:", rec.Error)
	}
	if rec.Response != nil {
		b.WriteString("\nResponse:\n")
		b.WriteString(*rec.Response)
		if !strings.HasSuffix(*rec.Response, "\n") {
			b.WriteString("\n")
		}
	}
	return b.String()
}
