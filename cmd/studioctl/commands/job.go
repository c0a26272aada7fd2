package commands

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/urfave/cli/v3"

	"github.com/kiranshivaraju/catalogstudio/internal/generation"
	"github.com/kiranshivaraju/catalogstudio/pkg/models"
)

const pollInterval = time.Second

func JobSubmitAction(ctx context.Context, cmd *cli.Command) error {
	productIDs, err := parseIDs("product", cmd.StringSlice("product"))
	if err != nil {
		return err
	}
	intentIDs, err := parseIDs("intent", cmd.StringSlice("intent"))
	if err != nil {
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

	res, err := ac.Service.SubmitJob(ctx, generation.JobRequest{
		ProductIDs:         productIDs,
		IntentIDs:          intentIDs,
		VariantFilter:      cmd.String("variant"),
		CustomInstructions: cmd.String("instructions"),
		Variables:          vars,
		Actor:              cmd.String("actor"),
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "job %s: %d unit(s), %d product(s) skipped\n", res.JobID, res.TotalUnits, res.SkippedCount)

	st, err := waitForJob(ctx, ac.Service.GetJobStatus, res.JobID, pollInterval, stdout)
	if err != nil {
		if ctx.Err() != nil {
			// Interrupted: stop dispatch; Close waits for in-flight units.
			if herr := ac.Service.HaltJob(context.WithoutCancel(ctx), res.JobID); herr != nil {
				ac.log.Warn("halt after interrupt", "job_id", res.JobID, "error", herr)
			}
			fmt.Fprintln(stdout, "interrupted; halting job and waiting for in-flight units")
		}
		return err
	}
	printJobStatus(stdout, st)
	if st.Status == models.JobStatusFailed {
		return fmt.Errorf("job %s failed", st.JobID)
	}
	return nil
}

func JobStatusAction(ctx context.Context, cmd *cli.Command) error {
	id, err := parseID("id", cmd.String("id"))
	if err != nil {
		return err
	}
	ac, err := newAppContext(ctx, cmd.String("env"))
	if err != nil {
		return err
	}
	defer ac.Close()

	st, err := ac.Service.GetJobStatus(ctx, id)
	if err != nil {
		return err
	}
	printJobStatus(stdout, st)
	return nil
}

func JobHaltAction(ctx context.Context, cmd *cli.Command) error {
	id, err := parseID("id", cmd.String("id"))
	if err != nil {
		return err
	}
	ac, err := newAppContext(ctx, cmd.String("env"))
	if err != nil {
		return err
	}
	defer ac.Close()

	if err := ac.Service.HaltJob(ctx, id); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "halt requested for %s\n", id)
	return nil
}

type statusFunc func(ctx context.Context, id uuid.UUID) (*generation.JobStatus, error)

// waitForJob polls until the job leaves PROCESSING, printing a line each time
// the counts move.
func waitForJob(ctx context.Context, status statusFunc, id uuid.UUID, interval time.Duration, w io.Writer) (*generation.JobStatus, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	lastDone := -1
	for {
		st, err := status(ctx, id)
		if err != nil {
			return nil, err
		}
		if done := st.CompletedImages + st.FailedImages; done != lastDone {
			fmt.Fprintf(w, "  %d/%d done (%d failed)\n", done, st.TotalImages, st.FailedImages)
			lastDone = done
		}
		if st.Status != models.JobStatusProcessing {
			return st, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func printJobStatus(w io.Writer, st *generation.JobStatus) {
	fmt.Fprintf(w, "Job:       %s\n", st.JobID)
	fmt.Fprintf(w, "Status:    %s\n", st.Status)
	fmt.Fprintf(w, "Total:     %d\n", st.TotalImages)
	fmt.Fprintf(w, "Completed: %d\n", st.CompletedImages)
	fmt.Fprintf(w, "Failed:    %d\n", st.FailedImages)
	if len(st.ErrorLog) > 0 {
		fmt.Fprintln(w, "Errors:")
		for _, line := range st.ErrorLog {
			fmt.Fprintf(w, "  - %s\n", line)
		}
	}
}
