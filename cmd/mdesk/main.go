package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"missiondesk/internal/app"
	"missiondesk/internal/config"
	"missiondesk/internal/domain"
	"missiondesk/internal/engine"
	"missiondesk/internal/lifecycle"
	"missiondesk/internal/repo"
)

var rootCmd = &cobra.Command{
	Use:   "mdesk",
	Short: "Missiondesk CLI",
	Long: `Missiondesk assigns field missions to employees and tracks them to completion.
- Users: administrators (مدیر) create missions; employees (کارمند) carry them out.
- Missions: a subject, place and time window, an optional checklist, and a status
  that moves NEW -> IN_PROGRESS -> COMPLETED as reports come in.
- Reports: what the assignee did. Before any delegation a mission keeps one report
  that is rewritten; afterwards every report is kept and checklist progress only grows.
- Delegation: the assignee proposes handing the mission to a colleague, who accepts
  (and becomes the assignee) or rejects; the delegator clears the state.
- Event log: every change is recorded; view it with 'mdesk log tail'.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		color.New(color.FgRed, color.Bold).Fprint(os.Stderr, "error: ")
		fmt.Fprintln(os.Stderr, describeError(err))
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("MISSIONDESK")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
	if viper.GetBool("no-color") {
		color.NoColor = true
	}
}

func addPersistentFlags() {
	pf := rootCmd.PersistentFlags()
	pf.StringP("workspace", "w", ".", "workspace directory")
	pf.String("config", "", "config file (default <workspace>/"+config.FileName+")")
	pf.Bool("json", false, "output JSON")
	pf.String("as", "", "acting user name or id (empty acts as a trusted local operator)")
	pf.String("jwt-secret", "", "token signing secret (overrides auth.jwt_secret)")
	pf.String("database-url", "", "PostgreSQL DSN; selects the postgres store")
	pf.Bool("no-color", false, "disable colored output")
	pf.String("log-level", "info", "log level: debug, info, warn, error")
	pf.String("log-format", "text", "log format: text or json")
	for _, name := range []string{"workspace", "config", "json", "as", "jwt-secret", "database-url", "no-color", "log-level", "log-format"} {
		_ = viper.BindPFlag(name, pf.Lookup(name))
	}
}

func registerCommands() {
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(userCmd())
	rootCmd.AddCommand(missionCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(configCmd())
}

// --- helpers ---

func loadConfig() (*config.Config, error) {
	var cfg *config.Config
	var err error
	if path := viper.GetString("config"); path != "" {
		cfg, err = config.FromFile(path)
	} else {
		cfg, err = config.LoadOrDefault(viper.GetString("workspace"))
	}
	if err != nil {
		return nil, err
	}
	if secret := viper.GetString("jwt-secret"); secret != "" {
		cfg.Auth.JWTSecret = secret
	}
	if dsn := viper.GetString("database-url"); dsn != "" {
		cfg.Store.Driver = "postgres"
		cfg.Store.DSN = dsn
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newLogger(w io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(viper.GetString("log-level"))); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(viper.GetString("log-format"), "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	e, conn, err := app.Open(ctx, app.Options{
		Workspace: viper.GetString("workspace"),
		Config:    cfg,
		Logger:    newLogger(os.Stderr).With("component", "cli"),
	})
	if err != nil {
		return err
	}
	defer conn.Close()
	return fn(ctx, e)
}

// actingUser resolves --as to a user id. Empty means a trusted operator.
func actingUser(ctx context.Context, e engine.Engine) (string, error) {
	ref := strings.TrimSpace(viper.GetString("as"))
	if ref == "" {
		return "", nil
	}
	return resolveUser(ctx, e, ref)
}

// requireActingUser is actingUser for operations that always act as someone.
func requireActingUser(ctx context.Context, e engine.Engine) (string, error) {
	id, err := actingUser(ctx, e)
	if err != nil {
		return "", err
	}
	if id == "" {
		return "", errors.New("--as is required for this command")
	}
	return id, nil
}

func resolveUser(ctx context.Context, e engine.Engine, ref string) (string, error) {
	if u, err := e.Repo.GetUser(ctx, ref); err == nil {
		return u.ID, nil
	} else if !errors.Is(err, repo.ErrNotFound) {
		return "", err
	}
	u, err := e.Repo.GetUserByName(ctx, ref)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return "", fmt.Errorf("no user named or identified by %q", ref)
		}
		return "", err
	}
	return u.ID, nil
}

func describeError(err error) string {
	var ve lifecycle.ValidationError
	if errors.As(err, &ve) {
		return fmt.Sprintf("%s [%s]", ve.Error(), ve.Code)
	}
	var coder lifecycle.Coder
	if errors.As(err, &coder) {
		return fmt.Sprintf("%s [%s]", err.Error(), coder.ErrorCode())
	}
	return err.Error()
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newTable() table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.SetStyle(table.StyleLight)
	return tw
}

func statusText(s domain.MissionStatus) string {
	switch s {
	case domain.StatusNew:
		return color.CyanString(s.Name())
	case domain.StatusInProgress:
		return color.YellowString(s.Name())
	case domain.StatusCompleted:
		return color.GreenString(s.Name())
	default:
		return string(s)
	}
}

func delegationText(m domain.Mission) string {
	if m.DelegationStatus == nil {
		return ""
	}
	target := ""
	if m.DelegationTarget != nil {
		target = " -> " + *m.DelegationTarget
	}
	label := string(*m.DelegationStatus) + target
	switch *m.DelegationStatus {
	case domain.DelegationPending:
		return color.MagentaString(label)
	case domain.DelegationRejected:
		return color.RedString(label)
	default:
		return label
	}
}

func optionalString(cmd *cobra.Command, name string, value string) *string {
	if !cmd.Flags().Changed(name) {
		return nil
	}
	return &value
}

func success(format string, args ...any) {
	if viper.GetBool("json") {
		return
	}
	color.Green(format, args...)
}
