package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/jsbridge/cli/reader"
	"github.com/pithecene-io/jsbridge/cli/render"
)

// inspectWarnRecords is the record count above which a table render on a
// terminal suggests --tui.
const inspectWarnRecords = 200

// readTimeout bounds archive reads.
const readTimeout = 30 * time.Second

// InspectCommand returns the inspect command.
// Inspect shows one transcript, from a file or from the archive.
func InspectCommand() *cli.Command {
	return &cli.Command{
		Name:      "inspect",
		Usage:     "Inspect a session transcript (file or archived session)",
		ArgsUsage: "[transcript-file]",
		Flags: append(TUIReadOnlyFlags(),
			append([]cli.Flag{
				&cli.StringFlag{Name: "session", Usage: "Read an archived session by ID"},
			}, StorageFlags()...)...,
		),
		Action: inspectAction,
	}
}

func inspectAction(c *cli.Context) error {
	resp, err := loadInspect(c)
	if err != nil {
		return err
	}

	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}

	if c.Bool("tui") {
		return r.RenderTUI("inspect_transcript", resp)
	}

	if r.Format() == render.FormatTable && len(resp.Records) > inspectWarnRecords && isStderrTTY() {
		fmt.Fprintf(os.Stderr, "%d records; try --tui for a scrollable view\n", len(resp.Records))
	}
	return r.Render(resp)
}

func loadInspect(c *cli.Context) (*reader.InspectTranscriptResponse, error) {
	sessionID := c.String("session")
	switch {
	case sessionID == "" && c.NArg() < 1:
		return nil, cli.Exit("transcript file or --session required", 1)
	case sessionID != "" && c.NArg() > 0:
		return nil, cli.Exit("pass either a transcript file or --session, not both", 1)
	case sessionID == "":
		resp, err := reader.InspectFile(c.Args().First())
		if err != nil {
			return nil, fmt.Errorf("failed to read transcript: %w", err)
		}
		return resp, nil
	}

	storage, err := readStorageChoice(c)
	if err != nil {
		return nil, cli.Exit(err.Error(), 1)
	}

	ctx, cancel := context.WithTimeout(c.Context, readTimeout)
	defer cancel()

	ds, err := buildReadDataset(ctx, storage)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage reader: %w", err)
	}
	resp, err := reader.NewLodeReader(ds).InspectSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to read session: %w", err)
	}
	return resp, nil
}
