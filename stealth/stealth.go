package stealth

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/proto"
	"github.com/sirupsen/logrus"

	"profile-messenger/config"
)

// Simulator performs primitive input actions with randomized timing and
// paths, so automated input resembles manual operation to naive detectors.
// All timing ranges come from the injected config; nothing here reads
// ambient process state.
type Simulator struct {
	timing config.TimingConfig
	logger *logrus.Logger
	rng    *rand.Rand
}

// Point represents a 2D screen coordinate
type Point struct {
	X float64
	Y float64
}

// NewSimulator creates a new input simulator
func NewSimulator(timing config.TimingConfig, logger *logrus.Logger) *Simulator {
	return &Simulator{
		timing: timing,
		logger: logger,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// MoveTo moves the pointer from start to end along an interpolated path
// with small per-step jitter and variable inter-step delay, producing a
// non-linear cursor trace.
func (s *Simulator) MoveTo(page *rod.Page, start, end Point, steps int) error {
	if steps < 1 {
		steps = 1
	}

	for _, p := range s.pathPoints(start, end, steps) {
		if err := page.Mouse.MoveLinear(proto.NewPoint(p.X, p.Y), 1); err != nil {
			return fmt.Errorf("failed to move pointer: %w", err)
		}
		time.Sleep(s.sample(s.timing.PointerStepMin, s.timing.PointerStepMax))
	}

	s.logger.WithFields(logrus.Fields{
		"from":  fmt.Sprintf("(%.0f, %.0f)", start.X, start.Y),
		"to":    fmt.Sprintf("(%.0f, %.0f)", end.X, end.Y),
		"steps": steps,
	}).Debug("Pointer moved")

	return nil
}

// Click resolves the element's on-screen bounding box, moves to a jittered
// point inside it, then issues the click with randomized press latency.
// Elements without a bounding box (not visible or detached) fail upward.
func (s *Simulator) Click(page *rod.Page, element *rod.Element) error {
	shape, err := element.Shape()
	if err != nil {
		return fmt.Errorf("element exposes no bounding box: %w", err)
	}
	box := shape.Box()
	if box == nil || box.Width == 0 || box.Height == 0 {
		return fmt.Errorf("element exposes no bounding box")
	}

	target := Point{
		X: box.X + box.Width*(0.3+s.rng.Float64()*0.4),
		Y: box.Y + box.Height*(0.3+s.rng.Float64()*0.4),
	}

	from := s.viewportCenter(page)
	if err := s.MoveTo(page, from, target, 12+s.rng.Intn(8)); err != nil {
		return err
	}

	// Press latency between button down and up.
	if err := page.Mouse.Down(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("failed to press button: %w", err)
	}
	time.Sleep(time.Duration(40+s.rng.Intn(110)) * time.Millisecond)
	if err := page.Mouse.Up(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("failed to release button: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"x": target.X,
		"y": target.Y,
	}).Debug("Clicked element")

	return nil
}

// Type clears the element with triple-click selection, then emits one input
// event per character with an independently sampled delay inside the given
// range. This produces irregular, human-like typing cadence.
func (s *Simulator) Type(page *rod.Page, element *rod.Element, text string, minDelay, maxDelay time.Duration) error {
	// Triple-click selects existing content so the first keystroke replaces it.
	if err := element.Click(proto.InputMouseButtonLeft, 3); err != nil {
		return fmt.Errorf("failed to focus element: %w", err)
	}
	if err := page.Keyboard.Press(input.Backspace); err != nil {
		return fmt.Errorf("failed to clear element: %w", err)
	}

	for i, char := range text {
		if err := element.Input(string(char)); err != nil {
			return fmt.Errorf("failed to type character %d: %w", i, err)
		}
		time.Sleep(s.sample(minDelay, maxDelay))
	}

	s.logger.WithField("length", len(text)).Debug("Typed text")
	return nil
}

// TypeDefault types with the configured default keystroke delay range.
func (s *Simulator) TypeDefault(page *rod.Page, element *rod.Element, text string) error {
	return s.Type(page, element, text, s.timing.TypeDelayMin, s.timing.TypeDelayMax)
}

// Scroll divides the total distance into steps, each followed by a
// randomized pause, to emulate incremental human scrolling.
func (s *Simulator) Scroll(page *rod.Page, distance float64, steps int) error {
	if steps < 1 {
		steps = 1
	}

	chunk := distance / float64(steps)
	for i := 0; i < steps; i++ {
		if err := page.Mouse.Scroll(0, chunk, 1); err != nil {
			return fmt.Errorf("failed to scroll: %w", err)
		}
		time.Sleep(s.sample(s.timing.ScrollStepMin, s.timing.ScrollStepMax))
	}

	s.logger.WithFields(logrus.Fields{
		"distance": distance,
		"steps":    steps,
	}).Debug("Scrolled")

	return nil
}

// PauseBetween sleeps a randomized duration inside [min, max].
func (s *Simulator) PauseBetween(min, max time.Duration) {
	time.Sleep(s.sample(min, max))
}

// pathPoints interpolates a jittered path between two points. The final
// point is always the exact target.
func (s *Simulator) pathPoints(start, end Point, steps int) []Point {
	points := make([]Point, 0, steps)
	for i := 1; i <= steps; i++ {
		t := float64(i) / float64(steps)
		p := Point{
			X: start.X + (end.X-start.X)*t,
			Y: start.Y + (end.Y-start.Y)*t,
		}
		if i < steps {
			p.X += (s.rng.Float64() - 0.5) * 6
			p.Y += (s.rng.Float64() - 0.5) * 6
		}
		points = append(points, p)
	}
	return points
}

// sample draws a duration uniformly from [min, max].
func (s *Simulator) sample(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	return min + time.Duration(s.rng.Int63n(int64(max-min)))
}

func (s *Simulator) viewportCenter(page *rod.Page) Point {
	viewport, err := page.Eval("() => ({width: window.innerWidth, height: window.innerHeight})")
	if err != nil {
		return Point{X: 683, Y: 384}
	}
	return Point{
		X: viewport.Value.Get("width").Num() / 2,
		Y: viewport.Value.Get("height").Num() / 2,
	}
}
