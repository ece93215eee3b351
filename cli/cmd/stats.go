package cmd

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/jsbridge/cli/reader"
	"github.com/pithecene-io/jsbridge/cli/render"
)

// StatsCommand returns the stats command.
// Stats shows the archived counters of a session, or of the latest session
// when --session is omitted.
func StatsCommand() *cli.Command {
	return &cli.Command{
		Name:  "stats",
		Usage: "Show archived session metrics",
		Flags: append(TUIReadOnlyFlags(),
			append([]cli.Flag{
				&cli.StringFlag{Name: "session", Usage: "Session ID (default: latest)"},
			}, StorageFlags()...)...,
		),
		Action: statsAction,
	}
}

func statsAction(c *cli.Context) error {
	storage, err := readStorageChoice(c)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}

	ctx, cancel := context.WithTimeout(c.Context, readTimeout)
	defer cancel()

	ds, err := buildReadDataset(ctx, storage)
	if err != nil {
		return fmt.Errorf("failed to initialize storage reader: %w", err)
	}

	snapshot, err := reader.NewLodeReader(ds).StatsSession(ctx, c.String("session"))
	if err != nil {
		return fmt.Errorf("failed to read metrics: %w", err)
	}

	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}

	if c.Bool("tui") {
		return r.RenderTUI("stats_session", snapshot)
	}

	return r.Render(snapshot)
}
