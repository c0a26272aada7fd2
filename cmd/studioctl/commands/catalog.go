package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v3"

	"github.com/kiranshivaraju/catalogstudio/internal/catalog"
)

func CatalogLoadAction(ctx context.Context, cmd *cli.Command) error {
	path := cmd.String("file")
	fh, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open catalog: %w", err)
	}
	defer fh.Close()

	f, err := catalog.Parse(fh, path)
	if err != nil {
		return err
	}
	baseDir, err := filepath.Abs(filepath.Dir(path))
	if err != nil {
		return err
	}

	ac, err := newAppContext(ctx, cmd.String("env"))
	if err != nil {
		return err
	}
	defer ac.Close()

	sum, err := catalog.Load(ctx, ac.Store, f, baseDir, ac.log)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "products: %d created, %d re-synced (%d assets)\n", sum.ProductsCreated, sum.ProductsResynced, sum.AssetsWritten)
	fmt.Fprintf(stdout, "intents:  %d created, %d already present\n", sum.IntentsCreated, sum.IntentsExisting)
	for _, id := range sum.ProductIDs {
		fmt.Fprintf(stdout, "  product %s\n", id)
	}
	for _, id := range sum.IntentIDs {
		fmt.Fprintf(stdout, "  intent  %s\n", id)
	}
	return nil
}
