package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/kiranshivaraju/catalogstudio/internal/apikey"
	"github.com/kiranshivaraju/catalogstudio/internal/store"
)

func APIKeyCreateAction(ctx context.Context, cmd *cli.Command) error {
	scopes := cmd.StringSlice("scope")
	for _, s := range scopes {
		if s != apikey.ScopeGenerate && s != apikey.ScopeAdmin {
			return fmt.Errorf("unknown scope %q", s)
		}
	}

	raw, key, err := apikey.New(cmd.String("name"), scopes)
	if err != nil {
		return err
	}

	ac, err := newAppContext(ctx, cmd.String("env"))
	if err != nil {
		return err
	}
	defer ac.Close()

	if err := ac.Store.CreateAPIKey(ctx, key); err != nil {
		if errors.Is(err, store.ErrDuplicateKey) {
			return fmt.Errorf("an active key named %q already exists", key.Name)
		}
		return fmt.Errorf("create api key: %w", err)
	}
	ac.log.Info("api key created", "key_id", key.ID, "name", key.Name)

	fmt.Fprintf(stdout, "ID:     %s\n", key.ID)
	fmt.Fprintf(stdout, "Name:   %s\n", key.Name)
	fmt.Fprintf(stdout, "Scopes: %v\n", key.Scopes)
	fmt.Fprintf(stdout, "Key:    %s\n\nStore this key now; it cannot be shown again.\n", raw)
	return nil
}

func APIKeyListAction(ctx context.Context, cmd *cli.Command) error {
	ac, err := newAppContext(ctx, cmd.String("env"))
	if err != nil {
		return err
	}
	defer ac.Close()

	keys, err := ac.Store.ListAPIKeys(ctx)
	if err != nil {
		return fmt.Errorf("list api keys: %w", err)
	}
	if len(keys) == 0 {
		fmt.Fprintln(stdout, "no active API keys")
		return nil
	}
	return renderKeys(stdout, keys)
}

func APIKeyRevokeAction(ctx context.Context, cmd *cli.Command) error {
	id, err := parseID("id", cmd.String("id"))
	if err != nil {
		return err
	}

	ac, err := newAppContext(ctx, cmd.String("env"))
	if err != nil {
		return err
	}
	defer ac.Close()

	if err := ac.Store.RevokeAPIKey(ctx, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("api key %s not found", id)
		}
		return fmt.Errorf("revoke api key: %w", err)
	}
	fmt.Fprintf(stdout, "revoked %s\n", id)
	return nil
}
