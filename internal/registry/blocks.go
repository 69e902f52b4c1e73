package registry

import (
	"fmt"
	"strings"
)

// State identifies a block state. The zero value is air.
type State uint16

// Air is the empty block state.
const Air State = 0

// RenderPass selects the terrain pass a block's geometry is drawn in.
type RenderPass uint8

const (
	PassOpaque RenderPass = iota
	PassCutout
	PassTranslucent

	PassCount = 3
)

func (p RenderPass) String() string {
	switch p {
	case PassOpaque:
		return "opaque"
	case PassCutout:
		return "cutout"
	case PassTranslucent:
		return "translucent"
	}
	return fmt.Sprintf("pass(%d)", uint8(p))
}

// Block defines the properties of a block state relevant to meshing.
type Block struct {
	State    State
	Name     string
	Pass     RenderPass
	Occludes bool   // full opaque cube that hides neighbouring faces
	Fluid    bool   // surface drawn below the block top when uncovered
	Emission uint8  // emitted block light, 0..15
	Tint     uint32 // RGBA8888
}

// Registry maps block names to states and back. A Registry must not be
// modified once it has been handed to a world, since build tasks read it
// from worker goroutines without locking.
type Registry struct {
	blocks []Block
	names  map[string]State
}

// New creates a registry that only knows air.
func New() *Registry {
	r := &Registry{names: make(map[string]State)}
	r.blocks = append(r.blocks, Block{State: Air, Name: "minecraft:air", Pass: PassCutout})
	r.names["minecraft:air"] = Air
	r.names["minecraft:cave_air"] = Air
	r.names["minecraft:void_air"] = Air
	return r
}

// Register adds a block definition and returns its assigned state.
// Registering a name twice returns the existing state.
func (r *Registry) Register(def Block) State {
	name := normalizeName(def.Name)
	if s, ok := r.names[name]; ok {
		return s
	}
	def.Name = name
	def.State = State(len(r.blocks))
	r.blocks = append(r.blocks, def)
	r.names[name] = def.State
	return def.State
}

// Lookup returns the state registered for the given name.
func (r *Registry) Lookup(name string) (State, bool) {
	s, ok := r.names[normalizeName(name)]
	return s, ok
}

// Get returns the definition for a state. Unknown states resolve to air.
func (r *Registry) Get(s State) *Block {
	if int(s) >= len(r.blocks) {
		return &r.blocks[Air]
	}
	return &r.blocks[s]
}

// Len returns the number of registered states including air.
func (r *Registry) Len() int {
	return len(r.blocks)
}

func normalizeName(name string) string {
	name = strings.TrimSpace(strings.ToLower(name))
	if !strings.Contains(name, ":") {
		name = "minecraft:" + name
	}
	return name
}

// Default returns a registry populated with the common terrain blocks.
func Default() *Registry {
	r := New()
	for _, def := range defaultBlocks {
		r.Register(def)
	}
	return r
}

var defaultBlocks = []Block{
	{Name: "stone", Pass: PassOpaque, Occludes: true, Tint: 0x7f7f7fff},
	{Name: "dirt", Pass: PassOpaque, Occludes: true, Tint: 0x866043ff},
	{Name: "grass_block", Pass: PassOpaque, Occludes: true, Tint: 0x5f9f35ff},
	{Name: "sand", Pass: PassOpaque, Occludes: true, Tint: 0xdbd3a0ff},
	{Name: "gravel", Pass: PassOpaque, Occludes: true, Tint: 0x857f7eff},
	{Name: "bedrock", Pass: PassOpaque, Occludes: true, Tint: 0x565656ff},
	{Name: "oak_log", Pass: PassOpaque, Occludes: true, Tint: 0x6b5533ff},
	{Name: "oak_planks", Pass: PassOpaque, Occludes: true, Tint: 0xa2824eff},
	{Name: "snow_block", Pass: PassOpaque, Occludes: true, Tint: 0xf0fbfbff},
	{Name: "glowstone", Pass: PassOpaque, Occludes: true, Emission: 15, Tint: 0xfbda74ff},
	{Name: "oak_leaves", Pass: PassCutout, Tint: 0x3f7f1fc0},
	{Name: "short_grass", Pass: PassCutout, Tint: 0x6d9f3aa0},
	{Name: "glass", Pass: PassCutout, Tint: 0xffffff40},
	{Name: "water", Pass: PassTranslucent, Fluid: true, Tint: 0x3f76e4b0},
	{Name: "ice", Pass: PassTranslucent, Tint: 0x91b7fdc0},
	{Name: "white_stained_glass", Pass: PassTranslucent, Tint: 0xffffff80},
}
