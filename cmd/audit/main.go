// Command audit recomputes every menu item's assigned total from its
// assignments and reports drift. It never writes. The exit status is 1 when
// any audited event is inconsistent and 2 when the audit could not run.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"

	"potluck/config"
	"potluck/internal/app"
	"potluck/internal/domain"
	"potluck/internal/services"
	"potluck/internal/store"
)

const (
	exitOK    = 0
	exitDrift = 1
	exitError = 2
)

var exitFunc = os.Exit

func main() {
	exitFunc(cli(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}

func cli(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("audit", flag.ContinueOnError)
	fs.SetOutput(stderr)
	eventID := fs.String("event", "", "audit only this event id (default: every event)")
	asJSON := fs.Bool("json", false, "print the reports as JSON")
	if err := fs.Parse(args); err != nil {
		return exitError
	}

	logger := config.NewLoggerTo(stderr, os.Getenv("GO_ENV"), os.Getenv("LOG_LEVEL"))
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(stderr, "audit: %v\n", err)
		return exitError
	}
	backend, err := app.OpenBackend(ctx, cfg, nil, logger)
	if err != nil {
		fmt.Fprintf(stderr, "audit: open store: %v\n", err)
		return exitError
	}
	defer backend.Close()

	validator := services.NewValidator(store.New(backend, logger), nil, logger)
	return audit(ctx, validator, *eventID, *asJSON, stdout, stderr)
}

func audit(ctx context.Context, v domain.Validator, eventID string, asJSON bool, stdout, stderr io.Writer) int {
	var reports []*domain.ValidationReport
	if eventID != "" {
		r, err := v.ValidateEvent(ctx, eventID)
		if err != nil {
			fmt.Fprintf(stderr, "audit: %v\n", err)
			return exitError
		}
		reports = []*domain.ValidationReport{r}
	} else {
		var err error
		if reports, err = v.ValidateAll(ctx); err != nil {
			fmt.Fprintf(stderr, "audit: %v\n", err)
			return exitError
		}
	}

	drift := 0
	for _, r := range reports {
		if !r.Valid {
			drift++
		}
	}

	if asJSON {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(reports); err != nil {
			fmt.Fprintf(stderr, "audit: %v\n", err)
			return exitError
		}
	} else {
		for _, r := range reports {
			if r.Valid {
				continue
			}
			fmt.Fprintf(stdout, "%s: %d issue(s)\n", r.EventID, len(r.Issues))
			for _, issue := range r.Issues {
				fmt.Fprintf(stdout, "  - %s\n", issue)
			}
		}
		fmt.Fprintf(stdout, "%d event(s) audited, %d inconsistent\n", len(reports), drift)
	}

	if drift > 0 {
		return exitDrift
	}
	return exitOK
}
