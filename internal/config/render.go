package config

import "sync"

const (
	MinRenderDistance = 2
	MaxRenderDistance = 32
)

// RenderSettings holds the settings that may change while the renderer runs.
type RenderSettings struct {
	mu             sync.RWMutex
	renderDistance int // in sections
}

var globalRenderSettings = &RenderSettings{
	renderDistance: 12,
}

func clampRenderDistance(d int) int {
	if d == 0 {
		return Defaults().RenderDistance
	}
	return min(max(d, MinRenderDistance), MaxRenderDistance)
}

// GetRenderDistance returns the current render distance in sections.
func GetRenderDistance() int {
	globalRenderSettings.mu.RLock()
	defer globalRenderSettings.mu.RUnlock()
	return globalRenderSettings.renderDistance
}

// SetRenderDistance sets the render distance in sections, clamped to
// [MinRenderDistance, MaxRenderDistance].
func SetRenderDistance(distance int) int {
	distance = min(max(distance, MinRenderDistance), MaxRenderDistance)
	globalRenderSettings.mu.Lock()
	defer globalRenderSettings.mu.Unlock()
	globalRenderSettings.renderDistance = distance
	return distance
}

// GetLoadRadius returns the column load radius, one more than the render
// distance so edge sections have neighbours for their halo.
func GetLoadRadius() int {
	return GetRenderDistance() + 1
}
