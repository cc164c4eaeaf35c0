// Package present blits the ray-cast output texture to the default
// framebuffer, so the demo has something to show. Window and swap-chain
// management live elsewhere.
package present

import (
	"fmt"
	"strings"

	gl "github.com/go-gl/gl/v4.1-core/gl"
)

// vertSrc generates a fullscreen triangle from gl_VertexID, no VBO.
const vertSrc = `
#version 410 core
out vec2 fragUV;
void main() {
    const vec2 pos[3] = vec2[3](
        vec2(-1.0, -1.0),
        vec2( 3.0, -1.0),
        vec2(-1.0,  3.0)
    );
    gl_Position = vec4(pos[gl_VertexID], 0.0, 1.0);
    fragUV      = pos[gl_VertexID] * 0.5 + 0.5;
}
` + "\x00"

const fragSrc = `
#version 410 core
in  vec2 fragUV;
out vec4 outColor;
uniform sampler2D srcTex;
void main() {
    outColor = texture(srcTex, fragUV);
}
` + "\x00"

// Blitter draws a source texture to the currently bound framebuffer
// (typically the window's default framebuffer) as a fullscreen triangle.
type Blitter struct {
	prog    uint32
	srcLoc  int32
	quadVAO uint32
}

func New() (*Blitter, error) {
	prog, err := newProgram(vertSrc, fragSrc)
	if err != nil {
		return nil, fmt.Errorf("present: %w", err)
	}
	b := &Blitter{prog: prog, srcLoc: gl.GetUniformLocation(prog, gl.Str("srcTex\x00"))}
	gl.GenVertexArrays(1, &b.quadVAO)
	return b, nil
}

// Draw blits srcTex to the current framebuffer; the source texture may
// be wider than the viewport due to power-of-two padding.
func (b *Blitter) Draw(srcTex uint32, viewportW, viewportH int32) {
	gl.Viewport(0, 0, viewportW, viewportH)
	gl.UseProgram(b.prog)
	gl.ActiveTexture(gl.TEXTURE0)
	gl.BindTexture(gl.TEXTURE_2D, srcTex)
	gl.Uniform1i(b.srcLoc, 0)
	gl.BindVertexArray(b.quadVAO)
	gl.DrawArrays(gl.TRIANGLES, 0, 3)
	gl.BindVertexArray(0)
}

func (b *Blitter) Destroy() {
	if b.prog != 0 {
		gl.DeleteProgram(b.prog)
		b.prog = 0
	}
	if b.quadVAO != 0 {
		gl.DeleteVertexArrays(1, &b.quadVAO)
		b.quadVAO = 0
	}
}

func newProgram(vertSrc, fragSrc string) (uint32, error) {
	vert, err := compileShader(vertSrc, gl.VERTEX_SHADER)
	if err != nil {
		return 0, fmt.Errorf("vertex: %w", err)
	}
	frag, err := compileShader(fragSrc, gl.FRAGMENT_SHADER)
	if err != nil {
		return 0, fmt.Errorf("fragment: %w", err)
	}

	prog := gl.CreateProgram()
	gl.AttachShader(prog, vert)
	gl.AttachShader(prog, frag)
	gl.LinkProgram(prog)

	var status int32
	gl.GetProgramiv(prog, gl.LINK_STATUS, &status)
	if status == gl.FALSE {
		var logLen int32
		gl.GetProgramiv(prog, gl.INFO_LOG_LENGTH, &logLen)
		log := strings.Repeat("\x00", int(logLen+1))
		gl.GetProgramInfoLog(prog, logLen, nil, gl.Str(log))
		return 0, fmt.Errorf("link failed: %v", log)
	}

	gl.DeleteShader(vert)
	gl.DeleteShader(frag)
	return prog, nil
}

func compileShader(src string, shaderType uint32) (uint32, error) {
	shader := gl.CreateShader(shaderType)
	csrc, free := gl.Strs(src)
	gl.ShaderSource(shader, 1, csrc, nil)
	free()
	gl.CompileShader(shader)

	var status int32
	gl.GetShaderiv(shader, gl.COMPILE_STATUS, &status)
	if status == gl.FALSE {
		var logLen int32
		gl.GetShaderiv(shader, gl.INFO_LOG_LENGTH, &logLen)
		log := strings.Repeat("\x00", int(logLen+1))
		gl.GetShaderInfoLog(shader, logLen, nil, gl.Str(log))
		return 0, fmt.Errorf("compile failed: %v", log)
	}
	return shader, nil
}
