package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/olekukonko/tablewriter"

	"github.com/kiranshivaraju/catalogstudio/internal/app"
	"github.com/kiranshivaraju/catalogstudio/internal/config"
	"github.com/kiranshivaraju/catalogstudio/internal/logger"
	"github.com/kiranshivaraju/catalogstudio/pkg/models"
)

// appContext bundles what a command needs once configuration is loaded.
type appContext struct {
	*app.App
	log *logger.Logger
}

func newAppContext(ctx context.Context, envFile string) (*appContext, error) {
	if err := config.LoadDotEnv(envFile); err != nil {
		return nil, err
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	log, err := logger.New(cfg.Server.Env)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Sync()
		return nil, err
	}
	return &appContext{App: a, log: log}, nil
}

func (ac *appContext) Close() {
	// In-process jobs must finish recording before the pool goes away.
	ac.Service.Wait()
	if err := ac.App.Close(); err != nil {
		ac.log.Warn("close resources", "error", err)
	}
	ac.log.Sync()
}

func parseID(name, raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid --%s %q: %w", name, raw, err)
	}
	return id, nil
}

func parseIDs(name string, raw []string) ([]uuid.UUID, error) {
	out := make([]uuid.UUID, 0, len(raw))
	for _, r := range raw {
		// Accept comma separated lists as well as repeated flags.
		for _, part := range strings.Split(r, ",") {
			if strings.TrimSpace(part) == "" {
				continue
			}
			id, err := parseID(name, part)
			if err != nil {
				return nil, err
			}
			out = append(out, id)
		}
	}
	return out, nil
}

func parseOptionalID(name, raw string) (*uuid.UUID, error) {
	if raw == "" {
		return nil, nil
	}
	id, err := parseID(name, raw)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

// parseVars turns name=value pairs into a variable map. Later pairs win.
func parseVars(raw []string) (map[string]string, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	vars := make(map[string]string, len(raw))
	for _, kv := range raw {
		name, value, ok := strings.Cut(kv, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid --var %q: want name=value", kv)
		}
		vars[name] = value
	}
	return vars, nil
}

func renderArtifacts(w io.Writer, list []*models.Artifact) error {
	table := tablewriter.NewWriter(w)
	table.Header("ID", "Intent", "Version", "Status", "Media", "Location", "Actor", "Created At")
	for _, a := range list {
		location := a.Location.Value
		if a.FailureReason != nil {
			location = "failed: " + *a.FailureReason
		}
		if err := table.Append(
			a.ID.String(),
			a.IntentID.String(),
			fmt.Sprintf("v%d", a.Version),
			string(a.Status),
			string(a.MediaType),
			location,
			a.Actor,
			a.CreatedAt.Format("2006-01-02 15:04"),
		); err != nil {
			return err
		}
	}
	return table.Render()
}

func renderKeys(w io.Writer, keys []*models.APIKey) error {
	table := tablewriter.NewWriter(w)
	table.Header("ID", "Name", "Prefix", "Scopes", "Last Used")
	for _, k := range keys {
		lastUsed := "never"
		if k.LastUsedAt != nil {
			lastUsed = k.LastUsedAt.Format("2006-01-02 15:04")
		}
		if err := table.Append(k.ID.String(), k.Name, k.KeyPrefix, strings.Join(k.Scopes, ","), lastUsed); err != nil {
			return err
		}
	}
	return table.Render()
}

var stdout io.Writer = os.Stdout
