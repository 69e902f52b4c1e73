package main

import (
	"fmt"
	"log"
	"os"
	"runtime"

	"github.com/urfave/cli/v2"

	"terrain-mesher/internal/config"
)

func init() {
	// glfw and GL calls must stay on the main thread
	runtime.LockOSThread()
}

func main() {
	configFlag := &cli.PathFlag{
		Name:  "config",
		Usage: "path to a YAML configuration file",
	}
	app := &cli.App{
		Name:        "terrain-mesher",
		Usage:       "asynchronous terrain section meshing",
		Description: "builds section meshes on a worker pool and integrates them on the render thread",
		Commands: []*cli.Command{
			{
				Name:   "view",
				Usage:  "fly through the terrain in a window",
				Action: commandView,
				Flags: []cli.Flag{
					configFlag,
					&cli.IntFlag{Name: "width", Value: 1280},
					&cli.IntFlag{Name: "height", Value: 720},
					&cli.IntFlag{Name: "fps", Usage: "frame rate cap, 0 for none", Value: 144},
				},
			},
			{
				Name:   "bench",
				Usage:  "build the terrain headless and report timings",
				Action: commandBench,
				Flags: []cli.Flag{
					configFlag,
					&cli.IntFlag{Name: "radius", Usage: "render distance in sections, 0 for the configured one"},
					&cli.IntFlag{Name: "frames", Usage: "frames of camera flight after the initial build", Value: 120},
					&cli.Float64Flag{Name: "speed", Usage: "camera speed in blocks per frame", Value: 2},
				},
			},
			{
				Name:   "config",
				Usage:  "print the effective configuration",
				Action: commandConfig,
				Flags:  []cli.Flag{configFlag},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func loadConfig(ctx *cli.Context) (config.Config, error) {
	cfg, err := config.Load(ctx.Path("config"))
	if err != nil {
		return cfg, fmt.Errorf("load config: %w", err)
	}
	config.SetRenderDistance(cfg.RenderDistance)
	return cfg, nil
}

func commandConfig(ctx *cli.Context) error {
	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}
	out, err := cfg.Marshal()
	if err != nil {
		return err
	}
	_, err = ctx.App.Writer.Write(out)
	return err
}
