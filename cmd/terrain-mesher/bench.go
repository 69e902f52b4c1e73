package main

import (
	"fmt"
	"log"
	"time"

	"github.com/urfave/cli/v2"

	"terrain-mesher/internal/config"
	"terrain-mesher/internal/profiling"
	"terrain-mesher/internal/registry"
	"terrain-mesher/internal/render"
	"terrain-mesher/internal/section"
	"terrain-mesher/internal/world"
)

func commandBench(ctx *cli.Context) error {
	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}
	if r := ctx.Int("radius"); r > 0 {
		cfg.RenderDistance = config.SetRenderDistance(r)
	}

	reg := registry.Default()
	t, err := openTerrain(cfg, reg)
	if err != nil {
		return err
	}
	defer t.close()

	prof := profiling.New()
	store := world.NewStore(reg, cfg.MinSectionY, cfg.MaxSectionY)
	streamer := world.NewStreamer(ctx.Context, store, t.src, prof)
	defer streamer.Close()

	dev := render.NewMemoryDevice()
	w := render.NewWorldRenderer(ctx.Context, store, render.Options{
		Config:   cfg,
		Registry: reg,
		Device:   dev,
		Profiler: prof,
	})
	defer w.Close()

	pos := t.spawn
	radius := cfg.RenderDistance
	vp := render.LookViewport(pos, 0, -15, 70, 16.0/9, radius)
	c := vp.Section()

	start := time.Now()
	cols, err := streamer.LoadSync(c.X, c.Z, radius+1)
	if err != nil {
		return fmt.Errorf("load terrain: %w", err)
	}
	for _, c := range cols {
		w.OnColumnLoaded(c.X, c.Z)
	}
	log.Printf("[bench] loaded %d columns in %v", len(cols), time.Since(start).Round(time.Millisecond))

	start = time.Now()
	w.SetupTerrain(vp, 1, true)
	built := time.Since(start)
	counts := w.Table().Counts()
	log.Printf("[bench] initial build: %d sections ready, %d uploads in %v", counts.Get(section.StatusReady), dev.Uploads, built.Round(time.Millisecond))
	if err := drawFrame(w, vp); err != nil {
		return err
	}
	log.Printf("[bench] %s", w.DebugString())

	// fly along +X, streaming columns in and out like the viewer does
	frames := ctx.Int("frames")
	speed := ctx.Float64("speed")
	var worst, total time.Duration
	for f := range frames {
		prof.ResetFrame()
		pos[0] += speed
		vp = render.LookViewport(pos, 0, -15, 70, 16.0/9, radius)
		streamColumns(w, streamer, vp.Section(), radius)

		start = time.Now()
		w.SetupTerrain(vp, uint64(f+2), cfg.Flawless)
		if err := drawFrame(w, vp); err != nil {
			return err
		}
		d := time.Since(start)
		total += d
		worst = max(worst, d)
	}
	if frames > 0 {
		log.Printf("[bench] %d frames: avg %v worst %v", frames, (total / time.Duration(frames)).Round(time.Microsecond), worst.Round(time.Microsecond))
		log.Printf("[bench] %s", w.DebugString())
	}
	if v := w.Guard().Violations(); v > 0 {
		log.Printf("[bench] %d render guard violations", v)
	}
	fmt.Fprintf(ctx.App.Writer, "sections=%d buffers=%d uploads=%d releases=%d\n", w.Table().Len(), dev.Live(), dev.Uploads, dev.Releases)
	return nil
}

// streamColumns requests the columns around c, hands the loaded ones to the
// renderer and evicts those beyond the load radius.
func streamColumns(w *render.WorldRenderer, s *world.Streamer, c section.Pos, radius int) {
	s.Request(c.X, c.Z, radius+1)
	s.Poll(func(p world.ColumnPos) { w.OnColumnLoaded(p.X, p.Z) })
	for _, p := range s.EvictFar(c.X, c.Z, radius+2) {
		w.OnColumnUnloaded(p.X, p.Z)
	}
}

// drawFrame draws every pass in order.
func drawFrame(w *render.WorldRenderer, vp *render.Viewport) error {
	for pass := range registry.PassCount {
		if err := w.Render(registry.RenderPass(pass), vp); err != nil {
			return err
		}
	}
	return nil
}
