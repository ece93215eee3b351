package cmd

import (
	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/jsbridge/assets"
	"github.com/pithecene-io/jsbridge/cli/render"
	"github.com/pithecene-io/jsbridge/types"
)

// VersionResponse is the response for the version command.
type VersionResponse struct {
	Version         string `json:"version" yaml:"version"`
	Commit          string `json:"commit" yaml:"commit"`
	ProtocolVersion string `json:"protocol_version" yaml:"protocol_version"`
	RuntimeChecksum string `json:"runtime_checksum" yaml:"runtime_checksum"`
}

// VersionCommand returns the version command.
func VersionCommand(commit string) *cli.Command {
	return &cli.Command{
		Name:   "version",
		Usage:  "Show version information",
		Flags:  ReadOnlyFlags(),
		Action: versionAction(commit),
	}
}

func versionAction(commit string) cli.ActionFunc {
	return func(c *cli.Context) error {
		r, err := render.NewRenderer(c)
		if err != nil {
			return err
		}

		if c.Bool("tui") {
			return cli.Exit("--tui is not supported for version command", 1)
		}

		return r.Render(VersionResponse{
			Version:         types.Version,
			Commit:          commit,
			ProtocolVersion: types.ProtocolVersion,
			RuntimeChecksum: assets.Checksum(),
		})
	}
}
