package main

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/urfave/cli/v2"

	"terrain-mesher/internal/config"
	"terrain-mesher/internal/graphics"
	"terrain-mesher/internal/input"
	"terrain-mesher/internal/profiling"
	"terrain-mesher/internal/registry"
	"terrain-mesher/internal/render"
	"terrain-mesher/internal/world"
)

func commandView(ctx *cli.Context) error {
	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}
	reg := registry.Default()
	t, err := openTerrain(cfg, reg)
	if err != nil {
		return err
	}
	defer t.close()

	if err := glfw.Init(); err != nil {
		return fmt.Errorf("glfw: %w", err)
	}
	defer glfw.Terminate()

	window, err := graphics.OpenWindow(ctx.Int("width"), ctx.Int("height"), "terrain-mesher")
	if err != nil {
		return fmt.Errorf("open window: %w", err)
	}
	defer window.Destroy()

	guard := render.NewGuard(cfg.StrictGuard)
	dev, err := graphics.NewDevice()
	if err != nil {
		return err
	}
	defer guard.Do(dev.Delete)

	atlas, err := graphics.BakeFont(16)
	if err != nil {
		return err
	}
	text, err := graphics.NewTextRenderer(atlas)
	if err != nil {
		return err
	}
	defer guard.Do(text.Delete)

	prof := profiling.New()
	store := world.NewStore(reg, cfg.MinSectionY, cfg.MaxSectionY)
	streamer := world.NewStreamer(ctx.Context, store, t.src, prof)
	defer streamer.Close()

	w := render.NewWorldRenderer(ctx.Context, store, render.Options{
		Config:   cfg,
		Registry: reg,
		Device:   dev,
		Profiler: prof,
		Guard:    guard,
	})
	defer w.Close()

	cam := graphics.NewCamera(t.spawn)
	keys := input.NewManager()
	keys.SetKeyCallback(window)
	window.SetCursorPosCallback(func(_ *glfw.Window, x, y float64) {
		cam.HandleMouse(x, y)
	})

	// load the spawn area before the first frame so the view starts complete
	spawn := cam.Viewport(1, config.GetRenderDistance()).Section()
	cols, err := streamer.LoadSync(spawn.X, spawn.Z, 1)
	if err != nil {
		return fmt.Errorf("load spawn: %w", err)
	}
	for _, c := range cols {
		w.OnColumnLoaded(c.X, c.Z)
	}

	v := &viewer{
		window:   window,
		dev:      dev,
		text:     text,
		w:        w,
		streamer: streamer,
		cam:      cam,
		keys:     keys,
		prof:     prof,
		flawless: cfg.Flawless,
		fps:      ctx.Int("fps"),
	}
	return v.run()
}

type viewer struct {
	window   *glfw.Window
	dev      *graphics.Device
	text     *graphics.TextRenderer
	w        *render.WorldRenderer
	streamer *world.Streamer
	cam      *graphics.Camera
	keys     *input.Manager
	prof     *profiling.Profiler
	limiter  graphics.FrameLimiter

	flawless bool
	overlay  bool
	fps      int
	rate     float64 // measured frames per second
	frame    uint64
}

func (v *viewer) run() error {
	last := time.Now()
	lastTitle := last
	frames := 0

	for !v.window.ShouldClose() {
		v.prof.ResetFrame()
		now := time.Now()
		dt := now.Sub(last).Seconds()
		last = now

		v.handleKeys(dt)
		if err := v.drawFrame(); err != nil {
			return err
		}

		func() { defer v.prof.Track("glfw.SwapBuffers")(); v.window.SwapBuffers() }()
		v.keys.PostUpdate()
		func() { defer v.prof.Track("glfw.PollEvents")(); glfw.PollEvents() }()

		frames++
		if since := time.Since(lastTitle); since >= time.Second {
			v.rate = float64(frames) / since.Seconds()
			v.window.SetTitle(fmt.Sprintf("terrain-mesher | %.0f fps", v.rate))
			frames = 0
			lastTitle = time.Now()
		}
		v.limiter.Wait(v.fps)
	}
	return nil
}

func (v *viewer) handleKeys(dt float64) {
	k := v.keys
	if k.JustPressed(input.ActionQuit) {
		v.window.SetShouldClose(true)
	}
	if k.JustPressed(input.ActionFartherView) {
		log.Printf("[view] render distance %d", config.SetRenderDistance(config.GetRenderDistance()+1))
	}
	if k.JustPressed(input.ActionNearerView) {
		log.Printf("[view] render distance %d", config.SetRenderDistance(config.GetRenderDistance()-1))
	}
	if k.JustPressed(input.ActionReload) {
		v.w.Reload()
	}
	if k.JustPressed(input.ActionToggleFlawless) {
		v.flawless = !v.flawless
		log.Printf("[view] flawless %v", v.flawless)
	}
	if k.JustPressed(input.ActionDebug) {
		v.overlay = !v.overlay
		log.Printf("[view] %s", v.w.DebugString())
	}

	speed := 1.0
	if k.IsActive(input.ActionFast) {
		speed = 4
	}
	v.cam.Move(
		k.Axis(input.ActionMoveBackward, input.ActionMoveForward),
		k.Axis(input.ActionMoveLeft, input.ActionMoveRight),
		k.Axis(input.ActionMoveDown, input.ActionMoveUp),
		dt*speed,
	)
}

func (v *viewer) drawFrame() error {
	width, height := v.window.GetFramebufferSize()
	if width == 0 || height == 0 {
		return nil // minimised
	}
	rd := config.GetRenderDistance()
	vp := v.cam.Viewport(float32(width)/float32(height), rd)

	func() {
		defer v.prof.Track("world.stream")()
		streamColumns(v.w, v.streamer, vp.Section(), rd)
	}()

	v.frame++
	v.w.SetupTerrain(vp, v.frame, v.flawless)

	defer v.prof.Track("terrain.draw")()
	guard := v.w.Guard()
	guard.Enter()
	defer guard.Exit()
	v.dev.BeginFrame(vp, width, height)
	if err := drawFrame(v.w, vp); err != nil {
		return err
	}
	if v.overlay {
		v.text.DrawLines(v.overlayLines(rd), 8, 4, width, height, mgl32.Vec3{1, 1, 1})
	}
	return nil
}

func (v *viewer) overlayLines(rd int) []string {
	p := v.cam.Position
	lines := []string{
		fmt.Sprintf("%.0f fps  frame %d", v.rate, v.frame),
		fmt.Sprintf("XYZ %.2f / %.2f / %.2f  yaw %.1f pitch %.1f", p.X(), p.Y(), p.Z(), v.cam.Yaw, v.cam.Pitch),
		fmt.Sprintf("render distance %d  flawless %v  columns pending %d", rd, v.flawless, v.streamer.Pending()),
	}
	return append(lines, strings.Split(v.w.DebugString(), " | ")...)
}
