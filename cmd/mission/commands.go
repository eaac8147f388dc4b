package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/avntro/mission-control/activity"
	"github.com/avntro/mission-control/board"
	"github.com/avntro/mission-control/task"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show server status",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		result, err := client.Status(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("server:  %s\n", serverURL)
		fmt.Printf("status:  %s\n", result["status"])
		fmt.Printf("version: %s\n", result["version"])
		return nil
	},
}

var agentsCmd = &cobra.Command{
	Use:   "agents",
	Short: "List agents with live telemetry",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		agents, err := client.Agents(cmd.Context())
		if err != nil {
			return err
		}
		if len(agents) == 0 {
			fmt.Println("no agents")
			return nil
		}
		stats, err := client.AgentStats(cmd.Context())
		if err != nil {
			fmt.Fprintf(os.Stderr, "warning: agent stats unavailable: %v\n", err)
		}
		now := time.Now()
		fmt.Printf("%-14s %-22s %-7s %-9s %-8s %-10s %s\n", "NAME", "LABEL", "STATUS", "CONTEXT", "TOKENS", "COST", "LAST ACTIVE")
		fmt.Println(strings.Repeat("-", 90))
		for _, a := range agents {
			ctxPct, tokens, cost := "-", "-", "-"
			if st, ok := stats[a.Name]; ok {
				pct := st.ContextPct
				if pct == 0 {
					pct = board.ContextPercent(st.MainSessionTokens, st.ContextLimit)
				}
				ctxPct = fmt.Sprintf("%d%%", pct)
				tokens = board.FormatTokens(st.MainSessionTokens)
				cost = board.FormatCost(st.TotalCost)
			}
			last := "-"
			if a.LastActivity != nil {
				last = board.TimeAgo(*a.LastActivity, now)
			}
			fmt.Printf("%-14s %-22s %-7s %-9s %-8s %-10s %s\n",
				a.Name, truncate(board.AgentLabel(a, true), 22), a.Status, ctxPct, tokens, cost, last)
		}
		return nil
	},
}

var (
	tasksStatus string
	tasksAgent  string
)

var tasksCmd = &cobra.Command{
	Use:   "tasks",
	Short: "List persisted tasks",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		f := task.Filter{AssignedAgent: tasksAgent}
		if tasksStatus != "" {
			st := task.Status(tasksStatus)
			if !st.Valid() {
				return fmt.Errorf("unknown status %q", tasksStatus)
			}
			f.Status = &st
		}
		tasks, err := client.Tasks(cmd.Context(), f)
		if err != nil {
			return err
		}
		if len(tasks) == 0 {
			fmt.Println("no tasks")
			return nil
		}
		fmt.Printf("%-36s %-30s %-12s %-9s %-14s\n", "ID", "TITLE", "STATUS", "PRIORITY", "AGENT")
		fmt.Println(strings.Repeat("-", 105))
		for _, t := range tasks {
			fmt.Printf("%-36s %-30s %-12s %-9s %-14s\n",
				t.ID, truncate(t.Title, 30), t.Status, t.Priority, t.AssignedAgent)
		}
		return nil
	},
}

var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Create, move or delete a task",
}

var (
	createDesc     string
	createAgent    string
	createPriority string
)

var taskCreateCmd = &cobra.Command{
	Use:   "create <title>",
	Short: "Create a task in To Do",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		t, err := client.CreateTask(cmd.Context(), task.NewTask{
			Title:         strings.Join(args, " "),
			Description:   createDesc,
			AssignedAgent: createAgent,
			Priority:      task.Priority(createPriority),
		})
		if err != nil {
			return err
		}
		fmt.Printf("created task %s\n", t.ID)
		return nil
	},
}

var taskMoveCmd = &cobra.Command{
	Use:   "move <id> <status>",
	Short: "Move a task to another lane",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		st := task.Status(args[1])
		if !st.Valid() {
			return fmt.Errorf("unknown status %q", args[1])
		}
		t, err := client.UpdateTask(cmd.Context(), args[0], task.Patch{Status: &st})
		if err != nil {
			return err
		}
		fmt.Printf("task %s is now %s\n", t.ID, t.Status)
		return nil
	},
}

var deleteYes bool

var taskDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id := args[0]
		if !deleteYes && !newPrompter(os.Stdin, os.Stdout).Confirm(fmt.Sprintf("Delete task %s?", id)) {
			fmt.Println("aborted")
			return nil
		}
		if err := client.DeleteTask(cmd.Context(), id); err != nil {
			return err
		}
		fmt.Printf("deleted task %s\n", id)
		return nil
	},
}

var boardCmd = &cobra.Command{
	Use:   "board",
	Short: "Print the merged board once",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		view, err := client.Board(cmd.Context())
		if err != nil {
			return err
		}
		for _, lane := range view.Lanes {
			fmt.Printf("\n== %s (%d) ==\n", lane.Status, lane.Total)
			for _, c := range lane.Cards {
				live := ""
				if c.IsLive {
					live = "⚡"
				}
				fmt.Printf("%-2s %-40s %-22s %-8s %s\n", live, truncate(c.Title, 40), truncate(c.Agent, 22), c.Duration, c.Cost)
			}
			if lane.Hidden > 0 {
				fmt.Printf("   +%d more\n", lane.Hidden)
			}
		}
		fmt.Printf("\n%d tasks\n", view.Total)
		return nil
	},
}

var (
	activityAgent string
	activityLimit int
)

var activityCmd = &cobra.Command{
	Use:   "activity",
	Short: "Show the activity feed",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		events, err := client.Activity(cmd.Context(), activity.Filter{Agent: activityAgent, Limit: activityLimit})
		if err != nil {
			return err
		}
		now := time.Now()
		for _, e := range events {
			mark := " "
			if !e.Success {
				mark = "!"
			}
			fmt.Printf("%s %-9s %-14s %-24s %s\n", mark, board.TimeAgo(e.CreatedAt, now), e.Agent, e.Action.Label(), truncate(e.Details, 60))
		}
		return nil
	},
}

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "List scheduled jobs",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		jobs, err := client.ScheduledTasks(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("%-24s %-30s %-20s %-12s\n", "ID", "TITLE", "SCHEDULE", "AGENT")
		fmt.Println(strings.Repeat("-", 90))
		for _, j := range jobs {
			fmt.Printf("%-24s %-30s %-20s %-12s\n", j.ID, truncate(j.Title, 30), truncate(j.ScheduleHuman, 20), j.Agent)
		}
		return nil
	},
}

func init() {
	tasksCmd.Flags().StringVar(&tasksStatus, "status", "", "filter by status (todo, in_progress, review, done)")
	tasksCmd.Flags().StringVar(&tasksAgent, "agent", "", "filter by assigned agent")

	taskCreateCmd.Flags().StringVarP(&createDesc, "description", "d", "", "task description")
	taskCreateCmd.Flags().StringVarP(&createAgent, "agent", "a", "", "assigned agent")
	taskCreateCmd.Flags().StringVarP(&createPriority, "priority", "p", "", "critical, high, medium or low")
	taskDeleteCmd.Flags().BoolVarP(&deleteYes, "yes", "y", false, "skip the confirmation prompt")
	taskCmd.AddCommand(taskCreateCmd, taskMoveCmd, taskDeleteCmd)

	activityCmd.Flags().StringVar(&activityAgent, "agent", "", "only this agent's events")
	activityCmd.Flags().IntVarP(&activityLimit, "limit", "n", activity.DefaultLimit, "number of events")

	rootCmd.AddCommand(statusCmd, agentsCmd, tasksCmd, taskCmd, boardCmd, activityCmd, jobsCmd)
}
