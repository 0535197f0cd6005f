package overlay

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/bryanchriswhite/ScreenShotSender/internal/capture"
)

// MinMainSurfaceSide is the size above which a surface is treated as main content
const MinMainSurfaceSide = 500

// TargetLocator finds the surface to capture. A nil surface with a nil error
// means there is nothing to capture right now.
type TargetLocator interface {
	Locate() (capture.Surface, error)
}

// RegisteredLocator returns the surface the host registered explicitly
type RegisteredLocator struct {
	mu      sync.RWMutex
	surface capture.Surface
}

// Register sets the capture target. Passing nil clears it.
func (r *RegisteredLocator) Register(surface capture.Surface) {
	r.mu.Lock()
	r.surface = surface
	r.mu.Unlock()
}

func (r *RegisteredLocator) Locate() (capture.Surface, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.surface, nil
}

// Candidate is one top-level surface reported by the platform
type Candidate struct {
	ID      uint32
	Owner   string
	Title   string
	Width   int
	Height  int
	Visible bool
	Surface capture.Surface
}

// Enumerator lists the top-level surfaces of the host
type Enumerator interface {
	Candidates() ([]Candidate, error)
}

// HeuristicLocator picks the most plausible main surface from an enumerator
type HeuristicLocator struct {
	enum    Enumerator
	exclude func(Candidate) bool
}

// NewHeuristicLocator creates a locator over enum. exclude filters out surfaces
// that must never be captured, such as the overlay itself.
func NewHeuristicLocator(enum Enumerator, exclude func(Candidate) bool) *HeuristicLocator {
	return &HeuristicLocator{enum: enum, exclude: exclude}
}

// Locate prefers a surface owned by an activity or main window, or one larger
// than MinMainSurfaceSide on both sides, and falls back to any other candidate.
func (h *HeuristicLocator) Locate() (surface capture.Surface, err error) {
	defer func() {
		if r := recover(); r != nil {
			surface = nil
			err = fmt.Errorf("window enumeration panicked: %v", r)
		}
	}()

	if h.enum == nil {
		return nil, nil
	}

	candidates, err := h.enum.Candidates()
	if err != nil {
		return nil, err
	}

	var usable []Candidate
	for _, c := range candidates {
		if c.Surface == nil || !c.Visible {
			continue
		}
		if h.exclude != nil && h.exclude(c) {
			continue
		}
		usable = append(usable, c)
	}

	for _, c := range usable {
		if LooksLikeMainSurface(c) {
			return c.Surface, nil
		}
	}
	if len(usable) > 0 {
		return usable[0].Surface, nil
	}
	return nil, nil
}

// LooksLikeMainSurface reports whether c is likely the host's main content
func LooksLikeMainSurface(c Candidate) bool {
	owner := strings.ToLower(c.Owner)
	if strings.Contains(owner, "activity") || strings.Contains(owner, "mainwindow") {
		return true
	}
	return c.Width > MinMainSurfaceSide && c.Height > MinMainSurfaceSide
}

// ChainLocator asks each locator in turn and returns the first surface found
type ChainLocator []TargetLocator

func (c ChainLocator) Locate() (capture.Surface, error) {
	var errs []error
	for _, l := range c {
		if l == nil {
			continue
		}
		surface, err := l.Locate()
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if surface != nil {
			return surface, nil
		}
	}
	return nil, errors.Join(errs...)
}
