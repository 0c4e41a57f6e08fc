package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"missiondesk/internal/domain"
	"missiondesk/internal/engine"
	"missiondesk/internal/lifecycle"
	"missiondesk/internal/repo"
	"missiondesk/internal/view"
)

func missionCmd() *cobra.Command {
	mission := &cobra.Command{Use: "mission", Short: "Manage missions"}
	mission.AddCommand(missionCreateCmd())
	mission.AddCommand(missionListCmd())
	mission.AddCommand(missionShowCmd())
	mission.AddCommand(missionEditCmd())
	mission.AddCommand(missionReportCmd())
	mission.AddCommand(missionDelegateCmd())
	mission.AddCommand(delegationActionCmd("accept", "Accept a delegation proposed to you", engine.Engine.AcceptDelegation))
	mission.AddCommand(delegationActionCmd("reject", "Reject a delegation proposed to you", engine.Engine.RejectDelegation))
	mission.AddCommand(delegationActionCmd("clear-delegation", "Clear the delegation state of a mission you delegated", engine.Engine.ClearDelegation))
	mission.AddCommand(missionPurgeCmd())
	return mission
}

// parseChecklist reads "Category:step1,step2" values.
func parseChecklist(values []string) ([]domain.ChecklistItem, error) {
	var items []domain.ChecklistItem
	for _, v := range values {
		cat, steps, ok := strings.Cut(v, ":")
		if !ok || strings.TrimSpace(cat) == "" {
			return nil, fmt.Errorf("checklist %q: want Category:step1,step2", v)
		}
		items = append(items, domain.ChecklistItem{Category: cat, Steps: strings.Split(steps, ",")})
	}
	return items, nil
}

// parseChecks reads "Category:step" values as completed steps.
func parseChecks(values []string) (domain.ChecklistState, error) {
	if len(values) == 0 {
		return nil, nil
	}
	state := domain.ChecklistState{}
	for _, v := range values {
		cat, step, ok := strings.Cut(v, ":")
		if !ok || cat == "" || step == "" {
			return nil, fmt.Errorf("check %q: want Category:step", v)
		}
		if state[cat] == nil {
			state[cat] = map[string]bool{}
		}
		state[cat][step] = true
	}
	return state, nil
}

func missionCreateCmd() *cobra.Command {
	var draft lifecycle.MissionDraft
	var checklist []string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a mission",
		RunE: func(cmd *cobra.Command, args []string) error {
			items, err := parseChecklist(checklist)
			if err != nil {
				return err
			}
			draft.Checklist = items
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				actor, err := requireActingUser(ctx, e)
				if err != nil {
					return err
				}
				if draft.AssignedTo != "" {
					if draft.AssignedTo, err = resolveUser(ctx, e, draft.AssignedTo); err != nil {
						return err
					}
				}
				draft.CreatedBy = actor
				m, err := e.CreateMission(ctx, engine.MissionCreateOptions{MissionDraft: draft, ActorID: actor})
				if err != nil {
					return err
				}
				success("created mission %s", m.ID)
				return printJSONOrTable(m)
			})
		},
	}
	cmd.Flags().StringVar(&draft.Subject, "subject", "", "mission subject")
	cmd.Flags().StringVar(&draft.Location, "location", "", "mission location")
	cmd.Flags().StringVar(&draft.StartTime, "start", "", "start time (RFC 3339 or 2006-01-02T15:04)")
	cmd.Flags().StringVar(&draft.EndTime, "end", "", "end time")
	cmd.Flags().StringVar(&draft.AssignedTo, "assign", "", "assignee name or id")
	cmd.Flags().StringArrayVar(&checklist, "checklist", nil, "checklist category and steps as Category:step1,step2 (repeatable)")
	return cmd
}

func missionListCmd() *cobra.Command {
	var nav, status, userRef string
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List missions",
		Long: `List missions. With --view the list is what the acting user (or --user) sees
on that screen: MY_MISSIONS, CREATED_MISSIONS, DASHBOARD or DELEGATIONS.
Without it every mission is listed.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			filter, err := view.ParseStatusFilter(status)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				var missions []domain.Mission
				if nav == "" && userRef == "" {
					missions, err = e.ListMissions(ctx, repo.MissionFilters{Status: filter.Status, Limit: limit})
				} else {
					var userID string
					if userRef != "" {
						userID, err = resolveUser(ctx, e, userRef)
					} else {
						userID, err = requireActingUser(ctx, e)
					}
					if err != nil {
						return err
					}
					missions, err = e.VisibleMissions(ctx, userID, view.ParseNav(nav), filter)
				}
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(missions)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"ID", "Subject", "Location", "Start", "Assignee", "Status", "Checklist", "Delegation"})
				for _, m := range missions {
					done, total := domain.Progress(m.Checklist, m.ChecklistState)
					tw.AppendRow(table.Row{m.ID, m.Subject, m.Location, m.StartTime, m.AssignedTo, statusText(m.Status), fmt.Sprintf("%d/%d", done, total), delegationText(m)})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&nav, "view", "", "navigation view")
	cmd.Flags().StringVar(&status, "status", "", "status filter: ALL, NEW, IN_PROGRESS or COMPLETED")
	cmd.Flags().StringVar(&userRef, "user", "", "list as this user instead of --as")
	cmd.Flags().IntVar(&limit, "limit", 0, "max missions when listing all")
	return cmd
}

func missionShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <mission>",
		Short: "Show a mission with its reports",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				m, err := e.GetMission(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(m)
				}
				tw := newTable()
				tw.AppendRows([]table.Row{
					{"ID", m.ID},
					{"Subject", m.Subject},
					{"Location", m.Location},
					{"Window", m.StartTime + " - " + m.EndTime},
					{"Status", statusText(m.Status)},
					{"Created by", m.CreatedBy},
					{"Assigned to", m.AssignedTo},
					{"Delegation", delegationText(m)},
				})
				for _, item := range m.Checklist {
					var marks []string
					for _, step := range item.Steps {
						mark := "[ ] "
						if m.ChecklistState.Done(item.Category, step) {
							mark = "[x] "
						}
						marks = append(marks, mark+step)
					}
					tw.AppendRow(table.Row{item.Category, strings.Join(marks, "\n")})
				}
				tw.Render()
				if len(m.Reports) == 0 {
					return nil
				}
				rt := newTable()
				rt.AppendHeader(table.Row{"Reporter", "Filed", "Departure", "Return", "Summary"})
				for _, r := range m.Reports {
					rt.AppendRow(table.Row{r.ReporterID, r.CreatedAt, r.DepartureTime, r.ReturnTime, r.Summary})
				}
				rt.Render()
				return nil
			})
		},
	}
}

func missionEditCmd() *cobra.Command {
	var subject, location, start, end string
	cmd := &cobra.Command{
		Use:   "edit <mission>",
		Short: "Change a mission's subject, location or schedule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			edit := lifecycle.MissionEdit{
				Subject:   optionalString(cmd, "subject", subject),
				Location:  optionalString(cmd, "location", location),
				StartTime: optionalString(cmd, "start", start),
				EndTime:   optionalString(cmd, "end", end),
			}
			if edit.Empty() {
				return fmt.Errorf("nothing to change")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				actor, err := actingUser(ctx, e)
				if err != nil {
					return err
				}
				m, err := e.UpdateMissionDetails(ctx, args[0], edit, actor)
				if err != nil {
					return err
				}
				success("updated mission %s", m.ID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "", "mission subject")
	cmd.Flags().StringVar(&location, "location", "", "mission location")
	cmd.Flags().StringVar(&start, "start", "", "start time")
	cmd.Flags().StringVar(&end, "end", "", "end time")
	return cmd
}

func missionReportCmd() *cobra.Command {
	var in lifecycle.ReportInput
	var status string
	var checks []string
	cmd := &cobra.Command{
		Use:   "report <mission>",
		Short: "File a report as the assignee",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			declared, err := domain.ParseMissionStatus(status)
			if err != nil {
				return err
			}
			if in.ChecklistState, err = parseChecks(checks); err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				actor, err := requireActingUser(ctx, e)
				if err != nil {
					return err
				}
				m, err := e.SubmitReport(ctx, args[0], actor, in, declared)
				if err != nil {
					return err
				}
				success("mission %s is now %s", m.ID, m.Status.Name())
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "new status: NEW, IN_PROGRESS or COMPLETED")
	cmd.Flags().StringVar(&in.DepartureTime, "departure", "", "departure time")
	cmd.Flags().StringVar(&in.ReturnTime, "return", "", "return time")
	cmd.Flags().StringVar(&in.Summary, "summary", "", "what was done")
	cmd.Flags().StringArrayVar(&checks, "check", nil, "completed checklist step as Category:step (repeatable)")
	_ = cmd.MarkFlagRequired("status")
	return cmd
}

func missionDelegateCmd() *cobra.Command {
	var target, reason string
	cmd := &cobra.Command{
		Use:   "delegate <mission>",
		Short: "Propose handing a mission to another user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				actor, err := requireActingUser(ctx, e)
				if err != nil {
					return err
				}
				targetID, err := resolveUser(ctx, e, target)
				if err != nil {
					return err
				}
				m, err := e.ProposeDelegation(ctx, args[0], actor, targetID, reason)
				if err != nil {
					return err
				}
				success("mission %s delegation %s", m.ID, delegationText(m))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&target, "to", "", "target user name or id")
	cmd.Flags().StringVar(&reason, "reason", "", "why the mission is handed over")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}

type delegationAction func(engine.Engine, context.Context, string, string) (domain.Mission, error)

func delegationActionCmd(use, short string, action delegationAction) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <mission>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				actor, err := requireActingUser(ctx, e)
				if err != nil {
					return err
				}
				m, err := action(e, ctx, args[0], actor)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(m)
				}
				success("mission %s assigned to %s %s", m.ID, m.AssignedTo, delegationText(m))
				return nil
			})
		},
	}
}

func missionPurgeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "purge <user>",
		Short: "Delete every mission assigned to a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				userID, err := resolveUser(ctx, e, args[0])
				if err != nil {
					return err
				}
				actor, err := actingUser(ctx, e)
				if err != nil {
					return err
				}
				ids, err := e.PurgeMissionsForUser(ctx, userID, actor)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(ids)
				}
				success("deleted %d mission(s)", len(ids))
				return nil
			})
		},
	}
}
