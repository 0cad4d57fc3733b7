package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"reelboard/internal/domain"
	"reelboard/internal/engine"
	"reelboard/internal/gantt"
	"reelboard/internal/repo"
)

// The CLI works on the local workspace directly and sees every task.
var operator = gantt.Viewer{Role: domain.RoleAdmin}

func projectCmd() *cobra.Command {
	prj := &cobra.Command{Use: "project", Short: "Manage video projects"}
	prj.AddCommand(
		projectListCmd(),
		projectCreateCmd(),
		projectShowCmd(),
		projectUpdateCmd(),
		projectDeliverCmd(),
		projectDeleteCmd(),
		projectTimelineCmd(),
		projectInitGanttCmd(),
	)
	return prj
}

func projectListCmd() *cobra.Command {
	var f repo.ProjectFilters
	var delivered string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List projects",
		RunE: func(cmd *cobra.Command, args []string) error {
			switch delivered {
			case "":
			case "true", "false":
				v := delivered == "true"
				f.Delivered = &v
			default:
				return fmt.Errorf("--delivered must be true or false")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.ListProjects(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable("ID", "Name", "Status", "Due", "Delivered", "Assignee", "Progress")
				for _, p := range items {
					tw.AppendRow(table.Row{p.ID, p.Name, p.Status, p.DueDate, p.DeliveryDate, p.Assignee, fmt.Sprintf("%d%%", p.Progress)})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().Int64Var(&f.CompanyID, "company", 0, "company id filter")
	cmd.Flags().StringVar(&f.Status, "status", "", "status filter")
	cmd.Flags().StringVar(&delivered, "delivered", "", "true|false")
	return cmd
}

func projectCreateCmd() *cobra.Command {
	var opts engine.ProjectCreateOptions
	var length int
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a project and lay out its production stages",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("length") {
				opts.CompletionLength = &length
			}
			opts.Actor = actor()
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.CreateProject(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().Int64Var(&opts.CompanyID, "company", 0, "company id")
	cmd.Flags().StringVar(&opts.Name, "name", "", "project name")
	cmd.Flags().StringVar(&opts.Status, "status", domain.StatusPlanning, "計画中|進行中|レビュー中|完了")
	cmd.Flags().StringVar(&opts.DueDate, "due", "", "due date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&opts.Assignee, "assignee", "", "responsible editor")
	cmd.Flags().StringVar(&opts.VideoAxis, "axis", domain.VideoAxisLong, "LONG|SHORT")
	cmd.Flags().IntVar(&length, "length", 0, "finished length in seconds")
	cmd.Flags().StringVar(&opts.RawMaterialURL, "raw-url", "", "raw material link")
	cmd.Flags().StringVar(&opts.ScriptURL, "script-url", "", "script link")
	cmd.Flags().StringVar(&opts.FinalVideoURL, "final-url", "", "final video link")
	for _, name := range []string{"company", "name", "due", "assignee"} {
		_ = cmd.MarkFlagRequired(name)
	}
	return cmd
}

func projectShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a project and its stage tasks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.GetProject(ctx, id)
				if err != nil {
					return err
				}
				tasks, err := e.ProjectTasks(ctx, id)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"project": p, "tasks": tasks})
				}
				fmt.Printf("%s  [%s]  due %s  %d%%\n", p.Name, p.Status, p.DueDate, p.Progress)
				printTasks(gantt.SerializeTasks(tasks, gantt.ViewPlan, false))
				return nil
			})
		},
	}
}

func projectUpdateCmd() *cobra.Command {
	var (
		name, status, due, assignee, axis string
		rawURL, scriptURL, finalURL       string
		company                           int64
		length                            int
	)
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Update a project; unedited stages follow",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			opts := engine.ProjectUpdateOptions{ID: id, Actor: actor()}
			flags := cmd.Flags()
			strFlag := func(flag string, v *string) *string {
				if flags.Changed(flag) {
					return v
				}
				return nil
			}
			opts.Name = strFlag("name", &name)
			opts.Status = strFlag("status", &status)
			opts.DueDate = strFlag("due", &due)
			opts.Assignee = strFlag("assignee", &assignee)
			opts.VideoAxis = strFlag("axis", &axis)
			opts.RawMaterialURL = strFlag("raw-url", &rawURL)
			opts.ScriptURL = strFlag("script-url", &scriptURL)
			opts.FinalVideoURL = strFlag("final-url", &finalURL)
			if flags.Changed("company") {
				opts.CompanyID = &company
			}
			if flags.Changed("length") {
				opts.CompletionLength = &length
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.UpdateProject(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "project name")
	cmd.Flags().StringVar(&status, "status", "", "status")
	cmd.Flags().StringVar(&due, "due", "", "due date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&assignee, "assignee", "", "responsible editor")
	cmd.Flags().StringVar(&axis, "axis", "", "LONG|SHORT")
	cmd.Flags().StringVar(&rawURL, "raw-url", "", "raw material link")
	cmd.Flags().StringVar(&scriptURL, "script-url", "", "script link")
	cmd.Flags().StringVar(&finalURL, "final-url", "", "final video link")
	cmd.Flags().Int64Var(&company, "company", 0, "company id")
	cmd.Flags().IntVar(&length, "length", 0, "finished length in seconds")
	return cmd
}

func projectDeliverCmd() *cobra.Command {
	var undo bool
	cmd := &cobra.Command{
		Use:   "deliver <id>",
		Short: "Mark a project delivered today (or --undo)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.ToggleDelivered(ctx, id, !undo, actor())
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().BoolVar(&undo, "undo", false, "clear the delivery")
	return cmd
}

func projectDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a project with its tasks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if err := e.DeleteProject(ctx, id, actor()); err != nil {
					return err
				}
				fmt.Println("deleted project", id)
				return nil
			})
		},
	}
}

func projectTimelineCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "timeline <id>",
		Short: "Show how long the project spent in each status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				tl, err := e.ProjectTimeline(ctx, id)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(tl)
				}
				tw := newTable("Status", "Start", "End", "Days", "Changed by")
				for _, s := range tl.Segments {
					tw.AppendRow(table.Row{s.Status, s.Start, s.End, s.Days, s.ChangedBy})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func projectInitGanttCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init-gantt <id>",
		Short: "Regenerate the project's stage tasks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				tasks, err := e.InitializeProjectGantt(ctx, id, actor())
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(tasks)
				}
				printTasks(gantt.SerializeTasks(tasks, gantt.ViewPlan, false))
				return nil
			})
		},
	}
}

func taskCmd() *cobra.Command {
	t := &cobra.Command{
		Use:   "task",
		Short: "Manage gantt tasks",
		Long: `Task fields are given as --set key=value using the API field names
(title, status, assignee, priority, progress, due_date, plan_start, plan_end,
actual_start, actual_end, order_index, notes, dependencies, project_id).
Dependencies accept "101,102".`,
	}
	t.AddCommand(taskListCmd(), taskCreateCmd(), taskShowCmd(), taskUpdateCmd(), taskDeleteCmd(), taskReorderCmd(), taskHistoryCmd())
	return t
}

func taskListCmd() *cobra.Command {
	var params = map[string]*string{}
	var view string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks as the gantt chart sees them",
		RunE: func(cmd *cobra.Command, args []string) error {
			raw := map[string]string{}
			for k, v := range params {
				raw[k] = *v
			}
			f, err := gantt.FiltersFromParams(raw)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				listing, err := e.GanttTasks(ctx, engine.GanttQuery{
					Filters: f,
					View:    view,
					Viewer:  operator,
				})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(listing)
				}
				printTasks(listing.Data)
				return nil
			})
		},
	}
	for _, name := range []string{"project_id", "assignee", "status", "keyword", "start_date", "end_date"} {
		params[name] = cmd.Flags().String(strings.ReplaceAll(name, "_", "-"), "", name+" filter")
	}
	cmd.Flags().StringVar(&view, "view", gantt.ViewPlan, "plan|actual")
	return cmd
}

func taskCreateCmd() *cobra.Command {
	var sets []string
	var title string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a manual task",
		RunE: func(cmd *cobra.Command, args []string) error {
			fields, err := setFields(sets)
			if err != nil {
				return err
			}
			if title != "" {
				fields["title"] = jsonString(title)
			}
			patch, errs := gantt.ParsePatch(fields)
			if len(errs) > 0 {
				return errs[0]
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.CreateTask(ctx, engine.CreateOptionsFromPatch(patch, actor()))
				if err != nil {
					return err
				}
				return printJSONOrTable(gantt.SerializeTask(t, gantt.ViewPlan, false))
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "task title")
	cmd.Flags().StringArrayVar(&sets, "set", nil, "field=value, repeatable")
	return cmd
}

func taskShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a task with its history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.GetTask(ctx, id, operator)
				if err != nil {
					return err
				}
				return printJSONOrTable(gantt.SerializeTask(t, gantt.ViewPlan, true))
			})
		},
	}
}

func taskHistoryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "history <id>",
		Short: "Show a task's change log, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				entries, err := e.TaskHistory(ctx, id, operator)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(entries)
				}
				tw := newTable("When", "Field", "Old", "New", "Actor")
				for _, h := range entries {
					tw.AppendRow(table.Row{h.Timestamp, h.Field, h.Old, h.New, h.Actor})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func taskUpdateCmd() *cobra.Command {
	var sets []string
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Update a task; fields that cannot be read are reported and skipped",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			fields, err := setFields(sets)
			if err != nil {
				return err
			}
			patch, errs := gantt.ParsePatch(fields)
			for _, e := range errs {
				fmt.Fprintln(os.Stderr, "warning:", e.Error())
			}
			if patch.Empty() {
				return fmt.Errorf("nothing to update")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.UpdateTask(ctx, id, patch, operator, actor())
				if err != nil {
					return err
				}
				return printJSONOrTable(gantt.SerializeTask(t, gantt.ViewPlan, false))
			})
		},
	}
	cmd.Flags().StringArrayVar(&sets, "set", nil, "field=value, repeatable")
	return cmd
}

func taskDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a manual task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if err := e.DeleteTask(ctx, id, actor()); err != nil {
					return err
				}
				fmt.Println("deleted task", id)
				return nil
			})
		},
	}
}

func taskReorderCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reorder <id>...",
		Short: "Set display order from the argument order",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids := make([]int64, 0, len(args))
			for _, a := range args {
				id, err := parseID(a)
				if err != nil {
					return err
				}
				ids = append(ids, id)
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				res, err := e.ReorderTasks(ctx, ids, operator, actor())
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(res)
				}
				fmt.Printf("reordered %d tasks\n", len(res.Updated))
				if len(res.Missing) > 0 {
					fmt.Printf("not found: %v\n", res.Missing)
				}
				return nil
			})
		},
	}
}

func ganttCmd() *cobra.Command {
	g := &cobra.Command{Use: "gantt", Short: "Project-level gantt views"}
	var company int64
	summary := &cobra.Command{
		Use:   "summary",
		Short: "One row per project with its phases",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				rows, err := e.GanttSummary(ctx, repo.ProjectFilters{CompanyID: company}, operator)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(rows)
				}
				tw := newTable("ID", "Project", "Company", "Status", "Start", "End", "Phases", "Progress")
				for _, r := range rows {
					tw.AppendRow(table.Row{r.ID, r.Name, r.CompanyName, r.Status, r.Start, r.End, len(r.Phases), fmt.Sprintf("%d%%", r.Progress)})
				}
				tw.Render()
				return nil
			})
		},
	}
	summary.Flags().Int64Var(&company, "company", 0, "company id filter")
	g.AddCommand(summary)
	return g
}

func printTasks(tasks []gantt.TaskView) {
	tw := newTable("ID", "Title", "Project", "Status", "Assignee", "Start", "End", "%", "Deps")
	for _, t := range tasks {
		title := t.Title
		if t.UserModified {
			title += " *"
		}
		tw.AppendRow(table.Row{t.ID, title, t.ProjectName, t.Status, t.Assignee, t.Start, t.End, t.Progress, t.DependenciesText})
	}
	tw.Render()
}

// setFields turns key=value flags into the loose JSON body the API accepts.
func setFields(sets []string) (map[string]json.RawMessage, error) {
	fields := make(map[string]json.RawMessage, len(sets))
	for _, s := range sets {
		key, value, ok := strings.Cut(s, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("--set expects field=value, got %q", s)
		}
		if value == "" || value == "null" {
			fields[key] = json.RawMessage("null")
			continue
		}
		fields[key] = jsonString(value)
	}
	return fields, nil
}

func jsonString(s string) json.RawMessage {
	b, _ := json.Marshal(s)
	return b
}
