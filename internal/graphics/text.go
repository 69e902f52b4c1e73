package graphics

import (
	_ "embed"
	"fmt"
	"image"
	"image/draw"
	"math"

	"github.com/go-gl/gl/v4.1-core/gl"
	"github.com/go-gl/mathgl/mgl32"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gomono"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
)

var (
	//go:embed shaders/text.vert
	textVert string
	//go:embed shaders/text.frag
	textFrag string
)

// glyph is the placement of one character in the atlas, in pixels.
type glyph struct {
	x, y, w, h         int
	bearingX, bearingY int
	advance            int
}

// FontAtlas is a baked set of printable ASCII glyphs.
type FontAtlas struct {
	img        *image.Alpha
	glyphs     map[rune]glyph
	lineHeight int
}

// BakeFont rasterises Go Mono at the given pixel size.
func BakeFont(pixels int) (*FontAtlas, error) {
	f, err := opentype.Parse(gomono.TTF)
	if err != nil {
		return nil, fmt.Errorf("parse font: %w", err)
	}
	face, err := opentype.NewFace(f, &opentype.FaceOptions{Size: float64(pixels), DPI: 72, Hinting: font.HintingFull})
	if err != nil {
		return nil, fmt.Errorf("new face: %w", err)
	}
	defer face.Close()

	const atlasW, padding = 512, 1
	type raster struct {
		r       rune
		dr      image.Rectangle
		mask    image.Image
		maskp   image.Point
		advance fixed.Int26_6
	}
	var glyphs []raster
	x, y, rowH := 0, 0, 0
	for r := rune(32); r <= 126; r++ {
		dr, mask, maskp, advance, ok := face.Glyph(fixed.P(0, 0), r)
		if !ok {
			continue
		}
		if x+dr.Dx() > atlasW {
			x, y, rowH = 0, y+rowH+padding, 0
		}
		x += dr.Dx() + padding
		rowH = max(rowH, dr.Dy())
		glyphs = append(glyphs, raster{r, dr, mask, maskp, advance})
	}

	a := &FontAtlas{
		img:        image.NewAlpha(image.Rect(0, 0, atlasW, y+rowH)),
		glyphs:     make(map[rune]glyph, len(glyphs)),
		lineHeight: face.Metrics().Height.Ceil(),
	}
	x, y, rowH = 0, 0, 0
	for _, g := range glyphs {
		w, h := g.dr.Dx(), g.dr.Dy()
		if x+w > atlasW {
			x, y, rowH = 0, y+rowH+padding, 0
		}
		if w > 0 && h > 0 {
			draw.Draw(a.img, image.Rect(x, y, x+w, y+h), g.mask, g.maskp, draw.Src)
		}
		a.glyphs[g.r] = glyph{
			x: x, y: y, w: w, h: h,
			bearingX: g.dr.Min.X,
			bearingY: -g.dr.Min.Y,
			advance:  int(math.Round(float64(g.advance) / 64)),
		}
		x += w + padding
		rowH = max(rowH, h)
	}
	return a, nil
}

// LineHeight returns the distance between baselines in pixels.
func (a *FontAtlas) LineHeight() int { return a.lineHeight }

// Measure returns the advance width of s in pixels.
func (a *FontAtlas) Measure(s string) int {
	w := 0
	for _, r := range s {
		g, ok := a.glyphs[r]
		if !ok {
			g = a.glyphs['?']
		}
		w += g.advance
	}
	return w
}

// appendQuads appends two triangles per visible character of s with its
// baseline starting at (x, y). Each vertex is x, y, u, v.
func (a *FontAtlas) appendQuads(dst []float32, s string, x, y float32) []float32 {
	bw, bh := float32(a.img.Rect.Dx()), float32(a.img.Rect.Dy())
	for _, r := range s {
		g, ok := a.glyphs[r]
		if !ok {
			g = a.glyphs['?']
		}
		if g.w > 0 && g.h > 0 {
			x0, y0 := x+float32(g.bearingX), y-float32(g.bearingY)
			x1, y1 := x0+float32(g.w), y0+float32(g.h)
			u0, v0 := float32(g.x)/bw, float32(g.y)/bh
			u1, v1 := float32(g.x+g.w)/bw, float32(g.y+g.h)/bh
			dst = append(dst,
				x0, y1, u0, v1,
				x0, y0, u0, v0,
				x1, y0, u1, v0,
				x0, y1, u0, v1,
				x1, y0, u1, v0,
				x1, y1, u1, v1,
			)
		}
		x += float32(g.advance)
	}
	return dst
}

// TextRenderer draws screen-space text from a FontAtlas.
type TextRenderer struct {
	atlas    *FontAtlas
	shader   *Shader
	texture  uint32
	vao, vbo uint32
	verts    []float32
}

// NewTextRenderer uploads the atlas. The GL context must be current.
func NewTextRenderer(atlas *FontAtlas) (*TextRenderer, error) {
	shader, err := NewShader(textVert, textFrag)
	if err != nil {
		return nil, fmt.Errorf("text shader: %w", err)
	}
	t := &TextRenderer{atlas: atlas, shader: shader}

	gl.GenTextures(1, &t.texture)
	gl.ActiveTexture(gl.TEXTURE0)
	gl.BindTexture(gl.TEXTURE_2D, t.texture)
	gl.PixelStorei(gl.UNPACK_ALIGNMENT, 1)
	b := atlas.img.Rect
	gl.TexImage2D(gl.TEXTURE_2D, 0, gl.RED, int32(b.Dx()), int32(b.Dy()), 0, gl.RED, gl.UNSIGNED_BYTE, gl.Ptr(atlas.img.Pix))
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_WRAP_S, gl.CLAMP_TO_EDGE)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_WRAP_T, gl.CLAMP_TO_EDGE)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MIN_FILTER, gl.NEAREST)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MAG_FILTER, gl.NEAREST)

	gl.GenVertexArrays(1, &t.vao)
	gl.GenBuffers(1, &t.vbo)
	gl.BindVertexArray(t.vao)
	gl.BindBuffer(gl.ARRAY_BUFFER, t.vbo)
	gl.EnableVertexAttribArray(0)
	gl.VertexAttribPointer(0, 4, gl.FLOAT, false, 4*4, gl.PtrOffset(0))
	gl.BindVertexArray(0)
	return t, glError("create text renderer")
}

// DrawLines draws lines top-down from (x, y) in pixels on a width x height
// framebuffer.
func (t *TextRenderer) DrawLines(lines []string, x, y float32, width, height int, color mgl32.Vec3) {
	t.verts = t.verts[:0]
	lh := float32(t.atlas.lineHeight)
	for i, line := range lines {
		t.verts = t.atlas.appendQuads(t.verts, line, x, y+lh*float32(i+1))
	}
	if len(t.verts) == 0 {
		return
	}

	gl.Disable(gl.DEPTH_TEST)
	gl.Disable(gl.CULL_FACE)
	gl.Enable(gl.BLEND)
	gl.BlendFunc(gl.SRC_ALPHA, gl.ONE_MINUS_SRC_ALPHA)

	t.shader.Use()
	t.shader.SetMatrix4("uProjection", mgl32.Ortho(0, float32(width), float32(height), 0, -1, 1))
	t.shader.SetVector3("uColor", color)
	t.shader.SetInt("uAtlas", 0)
	gl.ActiveTexture(gl.TEXTURE0)
	gl.BindTexture(gl.TEXTURE_2D, t.texture)

	gl.BindVertexArray(t.vao)
	gl.BindBuffer(gl.ARRAY_BUFFER, t.vbo)
	size := len(t.verts) * 4
	// orphan the previous contents
	gl.BufferData(gl.ARRAY_BUFFER, size, nil, gl.STREAM_DRAW)
	gl.BufferSubData(gl.ARRAY_BUFFER, 0, size, gl.Ptr(t.verts))
	gl.DrawArrays(gl.TRIANGLES, 0, int32(len(t.verts)/4))
	gl.BindVertexArray(0)

	gl.Disable(gl.BLEND)
	gl.Enable(gl.DEPTH_TEST)
}

// Delete frees the GL objects.
func (t *TextRenderer) Delete() {
	gl.DeleteVertexArrays(1, &t.vao)
	gl.DeleteBuffers(1, &t.vbo)
	gl.DeleteTextures(1, &t.texture)
	t.shader.Delete()
}
