package terminal

import (
	"log"
	"math"
	"os"
	"time"

	"github.com/esimov/water-fluid/controller"
	fluid "github.com/esimov/water-fluid/fluid-solver"
	"github.com/nsf/termbox-go"
)

// ramp lists the glyphs used for increasing density.
var ramp = []rune(" .:-=+*#%@")

const particleGlyph = '·'

// arrows are ordered clockwise from east, the terminal y axis points down.
var arrows = []rune("→↘↓↙←↖↑↗")

// minArrowSpeed hides vectors too short to have a visible direction.
const minArrowSpeed = 1e-4

// Terminal draws a fluid simulation as ASCII art and feeds it with mouse input.
type Terminal struct {
	ctrl     *controller.Controller
	interval time.Duration
	bbw, bbh int
	logfile  *os.File
	logger   *log.Logger
}

// New creates a terminal driver refreshing fps times per second.
// Debug messages are appended to logPath since the screen is owned by termbox.
func New(ctrl *controller.Controller, fps int, logPath string) (*Terminal, error) {
	if fps <= 0 {
		fps = 30
	}
	t := &Terminal{
		ctrl:     ctrl,
		interval: time.Second / time.Duration(fps),
	}
	var err error
	t.logfile, err = os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, err
	}
	t.logger = log.New(t.logfile, "terminal: ", log.LstdFlags)

	return t, nil
}

// Render runs the event loop until Esc or Ctrl-C is pressed.
func (t *Terminal) Render() error {
	defer t.logfile.Close()

	if err := termbox.Init(); err != nil {
		return err
	}
	defer termbox.Close()
	termbox.SetInputMode(termbox.InputEsc | termbox.InputMouse)
	t.bbw, t.bbh = termbox.Size()

	events := make(chan termbox.Event)
	done := make(chan struct{})
	// closed before termbox.Close so a poller holding an event never blocks
	defer close(done)

	go pump(termbox.PollEvent, events, done)

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	t.logger.Printf("started %dx%d terminal", t.bbw, t.bbh)
mainloop:
	for {
		select {
		case ev := <-events:
			if !t.handle(ev) {
				break mainloop
			}
		case <-ticker.C:
			t.ctrl.Tick()
			t.redraw()
		}
	}
	t.logger.Println("stopped")
	return nil
}

// pump forwards polled events until done is closed.
func pump(poll func() termbox.Event, events chan<- termbox.Event, done <-chan struct{}) {
	for {
		ev := poll()
		select {
		case events <- ev:
		case <-done:
			return
		}
	}
}

// handle processes a single event and reports whether the loop should continue.
func (t *Terminal) handle(ev termbox.Event) bool {
	switch ev.Type {
	case termbox.EventKey:
		switch {
		case ev.Key == termbox.KeyEsc || ev.Key == termbox.KeyCtrlC:
			return false
		case ev.Ch == 'r':
			t.ctrl.Reset()
			t.logger.Println("reset")
		}
	case termbox.EventMouse:
		switch ev.Key {
		case termbox.MouseLeft:
			if t.ctrl.Pressed() {
				t.ctrl.Drag(ev.MouseX, ev.MouseY, t.bbw, t.bbh)
			} else {
				t.ctrl.Press(ev.MouseX, ev.MouseY, t.bbw, t.bbh)
				t.logger.Printf("X:%d \t Y:%d", ev.MouseX, ev.MouseY)
			}
		case termbox.MouseRelease:
			t.ctrl.Release()
		}
	case termbox.EventResize:
		t.bbw, t.bbh = ev.Width, ev.Height
	case termbox.EventError:
		t.logger.Println(ev.Err)
		return false
	}
	return true
}

func (t *Terminal) redraw() {
	termbox.Clear(termbox.ColorDefault, termbox.ColorDefault)

	fs := t.ctrl.Solver()
	gw, gh := fs.Size()
	for y := 0; y < t.bbh; y++ {
		for x := 0; x < t.bbw; x++ {
			d, err := fs.Density(x*gw/t.bbw, y*gh/t.bbh)
			if err != nil {
				continue
			}
			termbox.SetCell(x, y, glyph(d), shade(d), termbox.ColorDefault)
		}
	}
	for _, p := range t.ctrl.Particles().Alive() {
		x := int(p.X() * float64(t.bbw) / float64(gw))
		y := int(p.Y() * float64(t.bbh) / float64(gh))
		termbox.SetCell(x, y, particleGlyph, termbox.ColorYellow, termbox.ColorDefault)
	}
	if t.ctrl.Settings().ShowVelocity {
		for _, v := range t.ctrl.VelocityField() {
			if math.Hypot(v.VX, v.VY) < minArrowSpeed {
				continue
			}
			termbox.SetCell(v.X*t.bbw/gw, v.Y*t.bbh/gh, arrow(v.VX, v.VY), termbox.ColorWhite, termbox.ColorDefault)
		}
	}
	termbox.Flush()
}

// glyph maps a density value to a character of the ramp.
func glyph(d float64) rune {
	if d <= 0 {
		return ramp[0]
	}
	i := int(d / fluid.MaxDensity * float64(len(ramp)-1))
	if i >= len(ramp) {
		i = len(ramp) - 1
	}
	return ramp[i]
}

// arrow returns the glyph closest to the direction of {vx, vy}.
func arrow(vx, vy float64) rune {
	octant := int(math.Round(math.Atan2(vy, vx) / (math.Pi / 4)))
	return arrows[(octant+len(arrows))%len(arrows)]
}

func shade(d float64) termbox.Attribute {
	switch {
	case d > 0.66*fluid.MaxDensity:
		return termbox.ColorWhite
	case d > 0.33*fluid.MaxDensity:
		return termbox.ColorCyan
	}
	return termbox.ColorBlue
}
