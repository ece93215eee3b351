package cmd

import (
	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/jsbridge/assets"
	"github.com/pithecene-io/jsbridge/cli/render"
)

// RuntimeResponse describes the embedded script-side runtime.
type RuntimeResponse struct {
	File     string `json:"file" yaml:"file"`
	Size     int    `json:"size" yaml:"size"`
	Checksum string `json:"checksum" yaml:"checksum"`
	Path     string `json:"path,omitempty" yaml:"path,omitempty"`
}

// RuntimeCommand returns the runtime command, which describes the embedded
// runtime and optionally writes it out for pages that bundle it.
func RuntimeCommand() *cli.Command {
	return &cli.Command{
		Name:  "runtime",
		Usage: "Show or write the embedded script-side bridge runtime",
		Flags: append(ReadOnlyFlags(),
			&cli.StringFlag{Name: "out", Usage: "Write " + assets.RuntimeFile + " into this directory"},
		),
		Action: runtimeAction,
	}
}

func runtimeAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}

	if c.Bool("tui") {
		return cli.Exit("--tui is not supported for runtime command", 1)
	}

	resp := RuntimeResponse{
		File:     assets.RuntimeFile,
		Size:     assets.Size(),
		Checksum: assets.Checksum(),
	}
	if dir := c.String("out"); dir != "" {
		path, err := assets.WriteRuntime(dir)
		if err != nil {
			return cli.Exit(err.Error(), 1)
		}
		resp.Path = path
	}
	return r.Render(resp)
}
