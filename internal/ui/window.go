package ui

import (
	"fmt"
	"time"

	"github.com/go-gl/gl/v4.1-core/gl"
	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/go-gl/mathgl/mgl32"

	"github.com/normanking/pixie/internal/avatar"
)

// Config sizes the pet window.
type Config struct {
	Width  int
	Height int
	Title  string
}

// Window is the native pet window. Every method must be called from the
// main OS thread; the caller locks it in init.
type Window struct {
	window *glfw.Window
	state  func() avatar.State
	tint   *Tint
	face   Face
	shader *shader
	vao    uint32
	last   time.Time

	onClick  func()
	pressed  bool
	dragged  bool
	grabX    float64
	grabY    float64
	released bool
}

// NewWindow initializes glfw and opens a borderless floating window. The
// caller falls back to Headless when this fails.
func NewWindow(cfg Config, state func() avatar.State, onClick func()) (*Window, error) {
	if err := glfw.Init(); err != nil {
		return nil, fmt.Errorf("init glfw: %w", err)
	}

	glfw.WindowHint(glfw.ContextVersionMajor, 4)
	glfw.WindowHint(glfw.ContextVersionMinor, 1)
	glfw.WindowHint(glfw.OpenGLProfile, glfw.OpenGLCoreProfile)
	glfw.WindowHint(glfw.OpenGLForwardCompatible, glfw.True)
	glfw.WindowHint(glfw.Resizable, glfw.False)
	glfw.WindowHint(glfw.Decorated, glfw.False)
	glfw.WindowHint(glfw.Floating, glfw.True)

	window, err := glfw.CreateWindow(cfg.Width, cfg.Height, cfg.Title, nil, nil)
	if err != nil {
		glfw.Terminate()
		return nil, fmt.Errorf("create window: %w", err)
	}
	window.MakeContextCurrent()

	if err := gl.Init(); err != nil {
		window.Destroy()
		glfw.Terminate()
		return nil, fmt.Errorf("gl init: %w", err)
	}
	glfw.SwapInterval(0) // the event loop paces frames

	prog, err := newShader(faceVertex, faceFragment)
	if err != nil {
		window.Destroy()
		glfw.Terminate()
		return nil, fmt.Errorf("face shader: %w", err)
	}
	var vao uint32
	gl.GenVertexArrays(1, &vao)
	gl.Enable(gl.BLEND)
	gl.BlendFunc(gl.SRC_ALPHA, gl.ONE_MINUS_SRC_ALPHA)

	if onClick == nil {
		onClick = func() {}
	}
	w := &Window{
		window:  window,
		state:   state,
		tint:    NewTint(state().Mood),
		shader:  prog,
		vao:     vao,
		last:    time.Now(),
		onClick: onClick,
	}
	window.SetMouseButtonCallback(w.mouseButton)
	window.SetCursorPosCallback(w.cursorPos)
	return w, nil
}

// Pump processes pending window events and draws one frame.
func (w *Window) Pump() error {
	glfw.PollEvents()
	if w.window.ShouldClose() {
		return nil
	}
	if w.released {
		w.released = false
		w.onClick()
	}

	now := time.Now()
	st := w.state()
	dt := now.Sub(w.last)
	c := w.tint.Step(st, dt)
	w.face.Step(st, dt)
	w.last = now

	bg := c.Mul(0.2)
	gl.ClearColor(bg[0], bg[1], bg[2], 1)
	gl.Clear(gl.COLOR_BUFFER_BIT)

	w.shader.use()
	w.shader.setVec3("body", c)
	w.shader.setFloat("eyes", w.face.Eyes)
	w.shader.setFloat("mouth", w.face.Mouth)
	w.shader.setVec2("bob", mgl32.Vec2{0, w.face.Bob})
	gl.BindVertexArray(w.vao)
	gl.DrawArrays(gl.TRIANGLES, 0, 3)

	w.window.SwapBuffers()
	return nil
}

// Closed reports whether the user closed the window.
func (w *Window) Closed() bool { return w.window.ShouldClose() }

// Close destroys the window and releases glfw.
func (w *Window) Close() {
	gl.DeleteVertexArrays(1, &w.vao)
	w.shader.delete()
	w.window.Destroy()
	glfw.Terminate()
}

// mouseButton drags the window with the left button; a press and release
// without movement counts as a click.
func (w *Window) mouseButton(win *glfw.Window, button glfw.MouseButton, action glfw.Action, _ glfw.ModifierKey) {
	if button != glfw.MouseButtonLeft {
		return
	}
	switch action {
	case glfw.Press:
		w.pressed, w.dragged = true, false
		w.grabX, w.grabY = win.GetCursorPos()
	case glfw.Release:
		if w.pressed && !w.dragged {
			w.released = true
		}
		w.pressed = false
	}
}

func (w *Window) cursorPos(win *glfw.Window, x, y float64) {
	if !w.pressed {
		return
	}
	dx, dy := int(x-w.grabX), int(y-w.grabY)
	if dx == 0 && dy == 0 {
		return
	}
	w.dragged = true
	px, py := win.GetPos()
	win.SetPos(px+dx, py+dy)
}
