package ui

import (
	"math"
	"time"

	"github.com/normanking/pixie/internal/avatar"
)

// The face is drawn by a single fragment shader over a full-window
// triangle: a round body in the mood colour, two eyes and a mouth.
const faceVertex = `#version 410 core
const vec2 corners[3] = vec2[3](vec2(-1.0, -1.0), vec2(3.0, -1.0), vec2(-1.0, 3.0));
out vec2 uv;
void main() {
	vec2 p = corners[gl_VertexID];
	uv = p * 0.5 + 0.5;
	gl_Position = vec4(p, 0.0, 1.0);
}
`

const faceFragment = `#version 410 core
in vec2 uv;
out vec4 colour;
uniform vec3 body;
uniform float eyes;   // 0 closed .. 1.3 wide
uniform float mouth;  // 0 shut .. 1 open
uniform vec2 bob;

float disc(vec2 p, vec2 c, vec2 r) {
	vec2 d = (p - c) / r;
	return 1.0 - smoothstep(0.9, 1.0, length(d));
}

void main() {
	vec2 p = uv - bob;
	float b = disc(p, vec2(0.5, 0.45), vec2(0.42, 0.38));
	float eh = max(0.004, 0.06 * eyes);
	float e = disc(p, vec2(0.36, 0.52), vec2(0.045, eh)) + disc(p, vec2(0.64, 0.52), vec2(0.045, eh));
	float m = disc(p, vec2(0.5, 0.33), vec2(0.08, max(0.006, 0.05 * mouth)));
	vec3 c = mix(vec3(0.0), body, b);
	c = mix(c, vec3(0.08), clamp(e + m, 0.0, 1.0) * b);
	colour = vec4(c, b);
}
`

// Face holds the animation values fed to the face shader.
type Face struct {
	Eyes  float32
	Mouth float32
	Bob   float32
	t     float64
}

// eyeOpenness maps an eye state to the shader's eye height.
func eyeOpenness(e avatar.EyeState) float32 {
	switch e {
	case avatar.EyeClosed:
		return 0
	case avatar.EyeHalf:
		return 0.45
	case avatar.EyeWide:
		return 1.3
	default:
		return 1
	}
}

// Step advances the face by dt for state s.
func (f *Face) Step(s avatar.State, dt time.Duration) {
	f.t += dt.Seconds()
	f.Eyes = eyeOpenness(s.EyeState)

	f.Mouth = 0
	if s.IsSpeaking {
		f.Mouth = 0.5 + 0.5*float32(math.Abs(math.Sin(f.t*2*math.Pi*3)))
	}

	// A slow breathing bob, faster while listening.
	rate := 0.5
	if s.IsListening {
		rate = 1.5
	}
	f.Bob = 0.01 * float32(math.Sin(f.t*2*math.Pi*rate))
}
