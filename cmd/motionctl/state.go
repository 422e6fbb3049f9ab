package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"motionbot/internal/app"
	"motionbot/internal/commands"
	"motionbot/internal/config"
	"motionbot/internal/storage"
	logx "motionbot/pkg/logx"
)

func newStateCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "state",
		Short: "Inspect or reset the notification gate state",
	}
	cmd.AddCommand(newStateShowCommand(ctx))
	cmd.AddCommand(newStateResetCommand(ctx))
	return cmd
}

type stateView struct {
	Driver           string               `json:"driver"`
	Dir              string               `json:"dir,omitempty"`
	LastNotification *time.Time           `json:"last_notification,omitempty"`
	LastPhoto        string               `json:"last_photo,omitempty"`
	Corrupt          bool                 `json:"corrupt,omitempty"`
	Cooldown         string               `json:"cooldown"`
	Audit            []storage.AuditEntry `json:"audit,omitempty"`
}

func newStateShowCommand(ctx *commandContext) *cobra.Command {
	var (
		jsonOut bool
		auditN  int
	)
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the last notification and recent audit entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.loadConfig(true)
			if err != nil {
				return err
			}
			return withStore(cfg, func(store storage.Store) error {
				view, err := loadStateView(cmd.Context(), cfg, store, auditN, time.Now())
				if err != nil {
					return err
				}
				if jsonOut {
					return writeJSON(cmd, view)
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderStateView(view, time.Now()))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output JSON")
	cmd.Flags().IntVarP(&auditN, "audit", "n", 10, "Number of audit entries to show (0 hides them)")
	return cmd
}

func newStateResetCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Forget the last notification so the next motion event notifies immediately",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.loadConfig(true)
			if err != nil {
				return err
			}
			return withStore(cfg, func(store storage.Store) error {
				start := time.Now()
				resetErr := store.Reset(cmd.Context())
				entry := storage.AuditEntry{
					At:            start,
					ActorUsername: "motionctl",
					Action:        "state.reset",
					OK:            resetErr == nil,
					TookMS:        time.Since(start).Milliseconds(),
				}
				if resetErr != nil {
					entry.Error = resetErr.Error()
				}
				_ = store.AppendAudit(cmd.Context(), entry)
				if resetErr != nil {
					return fmt.Errorf("reset state: %w", resetErr)
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Gate state reset.")
				return nil
			})
		},
	}
}

func withStore(cfg *config.Config, fn func(storage.Store) error) error {
	store, err := app.OpenStore(cfg, logx.Nop())
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer store.Close()
	return fn(store)
}

func loadStateView(ctx context.Context, cfg *config.Config, store storage.Store, auditN int, now time.Time) (stateView, error) {
	view := stateView{Driver: cfg.Storage.Driver, Dir: cfg.Storage.Dir}
	st, err := store.Load(ctx)
	if err != nil {
		if !errors.Is(err, storage.ErrCorruptState) {
			return view, fmt.Errorf("load state: %w", err)
		}
		view.Corrupt = true
		st.LastNotification = time.Time{}
	}
	if !st.LastNotification.IsZero() {
		t := st.LastNotification
		view.LastNotification = &t
	}
	view.LastPhoto = st.LastPhoto
	view.Cooldown = commands.FormatCooldown(cfg.Gate.CooldownDuration(), st.LastNotification, now)

	if auditN > 0 {
		entries, err := store.RecentAudit(ctx, auditN)
		if err != nil && !errors.Is(err, storage.ErrDisabled) {
			return view, fmt.Errorf("read audit: %w", err)
		}
		view.Audit = entries
	}
	return view, nil
}

func renderStateView(v stateView, now time.Time) string {
	var last time.Time
	if v.LastNotification != nil {
		last = *v.LastNotification
	}
	lastText := commands.FormatWhen(last, now)
	if v.Corrupt {
		lastText += " (state file corrupt)"
	}
	storageText := v.Driver
	if v.Driver != "memory" && v.Dir != "" {
		storageText += " (" + v.Dir + ")"
	}
	out := renderTable([]string{"Field", "Value"}, [][]string{
		{"Storage", storageText},
		{"Last notification", lastText},
		{"Last photo", orDash(v.LastPhoto)},
		{"Cooldown", v.Cooldown},
	}, nil)

	if len(v.Audit) == 0 {
		return out
	}
	rows := make([][]string, 0, len(v.Audit))
	for _, e := range v.Audit {
		ok := "yes"
		if !e.OK {
			ok = "no"
			if e.Error != "" {
				ok = "no: " + e.Error
			}
		}
		rows = append(rows, []string{
			e.At.Local().Format(time.DateTime),
			actorLabel(e),
			e.Action,
			orDash(e.Target),
			ok,
			strconv.FormatInt(e.TookMS, 10),
		})
	}
	return out + "\n" + renderTable(
		[]string{"At", "Actor", "Action", "Target", "OK", "ms"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignLeft, alignRight},
	)
}

func actorLabel(e storage.AuditEntry) string {
	switch {
	case e.ActorUsername != "" && e.ActorID != 0:
		return fmt.Sprintf("@%s (%d)", e.ActorUsername, e.ActorID)
	case e.ActorUsername != "":
		return e.ActorUsername
	case e.ActorID != 0:
		return strconv.FormatInt(e.ActorID, 10)
	default:
		return "-"
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
