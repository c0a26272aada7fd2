package commands

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/kiranshivaraju/catalogstudio/internal/generation"
)

func GenerateAction(ctx context.Context, cmd *cli.Command) error {
	productID, err := parseID("product", cmd.String("product"))
	if err != nil {
		return err
	}
	intentID, err := parseID("intent", cmd.String("intent"))
	if err != nil {
		return err
	}
	var hints generation.Hints
	if hints.ReferenceAssetID, err = parseOptionalID("reference-asset", cmd.String("reference-asset")); err != nil {
		return err
	}
	if hints.BaseArtifactID, err = parseOptionalID("base", cmd.String("base")); err != nil {
		return err
	}
	if hints.ParentArtifactID, err = parseOptionalID("parent", cmd.String("parent")); err != nil {
		return err
	}
	vars, err := parseVars(cmd.StringSlice("var"))
	if err != nil {
		return err
	}

	ac, err := newAppContext(ctx, cmd.String("env"))
	if err != nil {
		return err
	}
	defer ac.Close()

	artifact, failure, err := ac.Service.GenerateSingle(ctx, generation.SingleRequest{
		ProductID:          productID,
		IntentID:           intentID,
		Hints:              hints,
		CustomInstructions: cmd.String("instructions"),
		Variables:          vars,
		Actor:              cmd.String("actor"),
	})
	if err != nil {
		return err
	}
	if failure != nil {
		if artifact != nil {
			fmt.Fprintf(stdout, "artifact %s v%d rejected\n", artifact.ID, artifact.Version)
		}
		return failure
	}

	fmt.Fprintf(stdout, "ID:       %s\n", artifact.ID)
	fmt.Fprintf(stdout, "Version:  v%d\n", artifact.Version)
	fmt.Fprintf(stdout, "Media:    %s %dx%d, %d bytes\n", artifact.MediaType, artifact.Width, artifact.Height, artifact.SizeBytes)
	fmt.Fprintf(stdout, "Location: %s\n", artifact.Location.Value)
	return nil
}

func ArtifactsListAction(ctx context.Context, cmd *cli.Command) error {
	productID, err := parseID("product", cmd.String("product"))
	if err != nil {
		return err
	}
	intentID, err := parseOptionalID("intent", cmd.String("intent"))
	if err != nil {
		return err
	}

	ac, err := newAppContext(ctx, cmd.String("env"))
	if err != nil {
		return err
	}
	defer ac.Close()

	list, err := ac.Service.ListArtifacts(ctx, productID, intentID)
	if err != nil {
		return err
	}
	if len(list) == 0 {
		fmt.Fprintln(stdout, "no artifacts")
		return nil
	}
	return renderArtifacts(stdout, list)
}
