package world

import (
	"terrain-mesher/internal/registry"
	"terrain-mesher/internal/section"
)

// Relight computes the light of a column on its own. Sky light falls
// straight down, losing two levels per non-occluding block and stopping at
// the first occluding one. Block light floods from emissive blocks, one
// level per step, through non-occluding blocks of the same column.
func (c *Column) Relight() {
	minY, maxY := c.MinBlockY(), c.MaxBlockY()
	type node struct{ x, y, z int }
	var queue []node

	for x := 0; x < section.Size; x++ {
		for z := 0; z < section.Size; z++ {
			sky := uint8(15)
			for y := maxY; y >= minY; y-- {
				def := c.reg.Get(c.Get(x, y, z))
				switch {
				case def.Occludes:
					sky = 0
				case def.State != registry.Air:
					sky -= min(sky, 2)
				}
				c.SetLight(x, y, z, sky<<4|def.Emission&0xF)
				if def.Emission > 0 {
					queue = append(queue, node{x, y, z})
				}
			}
		}
	}

	dirs := [6][3]int{{1, 0, 0}, {-1, 0, 0}, {0, 1, 0}, {0, -1, 0}, {0, 0, 1}, {0, 0, -1}}
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		level := c.Light(n.x, n.y, n.z) & 0xF
		if level <= 1 {
			continue
		}
		for _, d := range dirs {
			x, y, z := n.x+d[0], n.y+d[1], n.z+d[2]
			if x < 0 || x >= section.Size || z < 0 || z >= section.Size || y < minY || y > maxY {
				continue
			}
			if c.reg.Get(c.Get(x, y, z)).Occludes {
				continue
			}
			l := c.Light(x, y, z)
			if l&0xF >= level-1 {
				continue
			}
			c.SetLight(x, y, z, l&0xF0|(level-1))
			queue = append(queue, node{x, y, z})
		}
	}
}
