package main

import (
	"context"
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"missiondesk/internal/domain"
	"missiondesk/internal/engine"
)

func userCmd() *cobra.Command {
	usr := &cobra.Command{Use: "user", Short: "Manage users"}
	usr.AddCommand(userListCmd())
	usr.AddCommand(userCreateCmd())
	usr.AddCommand(userUpdateCmd())
	usr.AddCommand(userDeleteCmd())
	usr.AddCommand(userPerformanceCmd())
	return usr
}

func userListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List users",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				users, err := e.ListUsers(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(users)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"ID", "Name", "Role", "Department", "Phone"})
				for _, u := range users {
					tw.AppendRow(table.Row{u.ID, u.Name, u.Role.Name(), u.Department, u.Phone})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func userCreateCmd() *cobra.Command {
	var opts engine.UserCreateOptions
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				actor, err := actingUser(ctx, e)
				if err != nil {
					return err
				}
				opts.ActorID = actor
				u, err := e.CreateUser(ctx, opts)
				if err != nil {
					return err
				}
				success("created user %s (%s)", u.Name, u.ID)
				return printJSONOrTable(u)
			})
		},
	}
	cmd.Flags().StringVar(&opts.Name, "name", "", "login name")
	cmd.Flags().StringVar(&opts.Password, "password", "", "password")
	cmd.Flags().StringVar(&opts.Role, "role", domain.RoleEmployee.Name(), "role: ADMIN or EMPLOYEE")
	cmd.Flags().StringVar(&opts.Department, "department", "", "department")
	cmd.Flags().StringVar(&opts.Phone, "phone", "", "phone number")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func userUpdateCmd() *cobra.Command {
	var name, password, role, department, phone string
	cmd := &cobra.Command{
		Use:   "update <user>",
		Short: "Update a user (only the given flags change)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				id, err := resolveUser(ctx, e, args[0])
				if err != nil {
					return err
				}
				actor, err := actingUser(ctx, e)
				if err != nil {
					return err
				}
				u, err := e.UpdateUser(ctx, id, engine.UserUpdateOptions{
					Name:       optionalString(cmd, "name", name),
					Password:   optionalString(cmd, "password", password),
					Role:       optionalString(cmd, "role", role),
					Department: optionalString(cmd, "department", department),
					Phone:      optionalString(cmd, "phone", phone),
					ActorID:    actor,
				})
				if err != nil {
					return err
				}
				success("updated user %s", u.ID)
				return printJSONOrTable(u)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "login name")
	cmd.Flags().StringVar(&password, "password", "", "new password")
	cmd.Flags().StringVar(&role, "role", "", "role: ADMIN or EMPLOYEE")
	cmd.Flags().StringVar(&department, "department", "", "department")
	cmd.Flags().StringVar(&phone, "phone", "", "phone number")
	return cmd
}

func userDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <user>",
		Short: "Delete a user and every mission assigned to them",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				id, err := resolveUser(ctx, e, args[0])
				if err != nil {
					return err
				}
				actor, err := actingUser(ctx, e)
				if err != nil {
					return err
				}
				purged, err := e.DeleteUser(ctx, id, actor)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"deleted": id, "purged_missions": purged})
				}
				success("deleted user %s and %d mission(s)", id, len(purged))
				return nil
			})
		},
	}
}

func userPerformanceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "performance <user>",
		Short: "Show mission and checklist counters for a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				id, err := resolveUser(ctx, e, args[0])
				if err != nil {
					return err
				}
				perf, err := e.Performance(ctx, id)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(perf)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"Metric", "Value"})
				tw.AppendRow(table.Row{"assigned", perf.Assigned})
				for _, s := range domain.MissionStatuses() {
					tw.AppendRow(table.Row{"  " + s.Name(), perf.ByStatus[s.Name()]})
				}
				tw.AppendRow(table.Row{"reports filed", perf.ReportsFiled})
				tw.AppendRow(table.Row{"delegations sent", perf.DelegationsSent})
				tw.AppendRow(table.Row{"delegations received", perf.DelegationsReceived})
				tw.AppendRow(table.Row{"checklist", fmt.Sprintf("%d/%d", perf.ChecklistDone, perf.ChecklistTotal)})
				tw.Render()
				return nil
			})
		},
	}
}
