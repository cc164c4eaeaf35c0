package raycast

import (
	"fmt"
	"strings"

	gl "github.com/go-gl/gl/v4.3-core/gl"
)

// kernelComputeSrc is the GLSL compute-shader body shared by every
// specialization. Boolean/enum flags are injected as #define macros
// ahead of this source, so only the flag combinations a session
// actually reaches are ever compiled.
const kernelComputeSrc = `
layout(local_size_x = 16, local_size_y = 16) in;

layout(rgba8, binding = 0) uniform writeonly image2D outColor;
#if WANT_DEPTH
layout(DEPTH_FORMAT, binding = 1) uniform writeonly uimage2D outDepth;
#endif

uniform sampler3D volumeTex;
uniform sampler1D tfTex;
#if SPACE_SKIPPING
uniform sampler3D skipTex;
uniform ivec3 volDim;
uniform ivec3 skipCellSize;
uniform ivec3 skipGridDim;
#endif
#if JITTERING
uniform sampler1D jitterTex;
#endif

uniform mat4 invMVP;
uniform mat4 mvp;
uniform vec4 background;
uniform vec3 volPos;
uniform vec3 volHalf;
uniform vec3 probePos;
uniform vec3 probeHalf;
uniform vec3 lightDir;
uniform vec3 halfVec;
uniform vec3 clipSphereCenter;
uniform float clipSphereRadiusSq;
uniform vec3 clipPlaneNormal;
uniform float clipPlaneDist;
uniform float stepDistance;
uniform int numSlices;
uniform int texW;
uniform int width;
uniform int height;

// Ray-box slab test against the probe region. This is the kernel's own
// minimal intersection routine, not a general-purpose AABB library.
bool slabIntersect(vec3 origin, vec3 dir, vec3 bmin, vec3 bmax, out float tnear, out float tfar) {
    vec3 invDir = 1.0 / dir;
    vec3 t0 = (bmin - origin) * invDir;
    vec3 t1 = (bmax - origin) * invDir;
    vec3 tsmaller = min(t0, t1);
    vec3 tbigger  = max(t0, t1);
    tnear = max(max(tsmaller.x, tsmaller.y), tsmaller.z);
    tfar  = min(min(tbigger.x, tbigger.y), tbigger.z);
    return tfar >= max(tnear, 0.0) && tnear <= tfar;
}

#if ROI_USED && SPHERICAL_ROI
bool sphereIntersect(vec3 origin, vec3 dir, vec3 center, float radiusSq, out float tnear, out float tfar) {
    vec3 oc = origin - center;
    float b = 2.0 * dot(oc, dir);
    float c = dot(oc, oc) - radiusSq;
    float disc = b * b - 4.0 * c;
    if (disc < 0.0) return false;
    float sq = sqrt(disc);
    tnear = (-b - sq) * 0.5;
    tfar  = (-b + sq) * 0.5;
    if (tnear > tfar) { float tmp = tnear; tnear = tfar; tfar = tmp; }
    return tfar >= 0.0;
}
#endif

void main() {
    ivec2 px = ivec2(gl_GlobalInvocationID.xy);
    if (px.x >= width || px.y >= height) return;

    float u = 2.0 * float(px.x) / float(width) - 1.0;
    float v = 2.0 * float(px.y) / float(height) - 1.0;

    vec4 o4 = invMVP * vec4(u, v, -1.0, 1.0);
    vec4 f4 = invMVP * vec4(u, v, 1.0, 1.0);
    vec3 origin = o4.xyz / o4.w;
    vec3 dir = normalize(f4.xyz / f4.w - origin);

    float tnear, tfar;
#if ROI_USED && SPHERICAL_ROI
    bool hit = sphereIntersect(origin, dir, probePos, probeHalf.x * probeHalf.x, tnear, tfar);
#else
    bool hit = slabIntersect(origin, dir, probePos - probeHalf, probePos + probeHalf, tnear, tfar);
#endif
    if (!hit) {
        imageStore(outColor, px, vec4(0.0));
#if WANT_DEPTH
        imageStore(outDepth, px, uvec4(0));
#endif
        return;
    }

    tnear = max(tnear, 0.0);
    tnear = floor(tnear / stepDistance) * stepDistance;

#if ROI_USED && SPHERICAL_ROI
    if (clipSphereRadiusSq > 0.0) {
        float snear, sfar;
        if (!sphereIntersect(origin, dir, clipSphereCenter, clipSphereRadiusSq, snear, sfar)) {
            imageStore(outColor, px, vec4(0.0));
#if WANT_DEPTH
            imageStore(outDepth, px, uvec4(0));
#endif
            return;
        }
    }
#endif

#if CLIP_MODE
    float nddot = dot(clipPlaneNormal, dir);
    if (abs(nddot) < 1e-8) nddot = 1e-8;
    float tpnear = (clipPlaneDist - dot(clipPlaneNormal, origin)) / nddot;
#endif

    vec4 dst = vec4(0.0);
#if MIP_MODE != 0
    dst = background;
#endif

    vec3 pos = origin + dir * tnear;
#if JITTERING
    int jidx = (px.y * width + px.x) % 8192;
    vec3 jv = (texelFetch(jitterTex, jidx, 0).xyz);
    pos += jv * stepDistance;
#endif

    float lastAlpha = 0.0;
    float maxDiff = 0.0;
    vec3 maxDiffPos = pos;
    bool wasClipped = false;

    float t = tnear;
    for (int i = 0; i <= numSlices && t <= tfar; i++) {
        bool clippedNow = false;
#if CLIP_MODE
        if ((t <= tpnear && nddot >= 0.0) || (t >= tpnear && nddot < 0.0)) {
            clippedNow = true;
        }
#endif
        if (clippedNow) {
            wasClipped = true;
            t += stepDistance;
            pos += dir * stepDistance;
            continue;
        }

        vec3 tc = (pos - volPos + volHalf) / (2.0 * volHalf);

#if SPACE_SKIPPING
        ivec3 vi = clamp(ivec3(tc * vec3(volDim)), ivec3(0), volDim - 1);
        ivec3 ci = min(vi / skipCellSize, skipGridDim - 1);
        if (texelFetch(skipTex, ci, 0).r > 0.5) {
            t += stepDistance;
            pos += dir * stepDistance;
            wasClipped = false;
            continue;
        }
#endif

        float s = texture(volumeTex, tc).r;
        vec4 src = texture(tfTex, s);

#if MIP_MODE == 1
        dst = vec4(max(dst.rgb, src.rgb), 1.0);
#elif MIP_MODE == 2
        dst = vec4(min(dst.rgb, src.rgb), 1.0);
#else
#if LIGHTING
        if (src.a > 0.1) {
            float delta = 0.01;
            float gx = texture(volumeTex, tc + vec3(delta,0,0)).r - texture(volumeTex, tc - vec3(delta,0,0)).r;
            float gy = texture(volumeTex, tc + vec3(0,delta,0)).r - texture(volumeTex, tc - vec3(0,delta,0)).r;
            float gz = texture(volumeTex, tc + vec3(0,0,delta)).r - texture(volumeTex, tc - vec3(0,0,delta)).r;
            vec3 n = normalize(vec3(gx, gy, gz));
            if (wasClipped) {
                n = normalize(n * (1.0 - src.a) + clipPlaneNormal * src.a);
            }
            float diff = max(dot(n, lightDir), 0.0);
            vec3 color = src.rgb * diff * vec3(0.8);
            if (diff > 0.0) {
                float spec = pow(max(dot(n, halfVec), 0.0), 1000.0);
                if (spec > 0.0) color += vec3(0.8) * spec;
            }
            src.rgb = color;
        }
#endif
#if OPCORR
        src.a = 1.0 - pow(1.0 - src.a, stepDistance);
#endif
        src.rgb *= src.a;
        float inv = 1.0 - dst.a;
        dst.rgb += src.rgb * inv;
        dst.a += src.a * inv;
#endif
        wasClipped = false;

        if (dst.a - lastAlpha > maxDiff) {
            maxDiff = dst.a - lastAlpha;
            maxDiffPos = pos;
        }
        lastAlpha = dst.a;

#if MIP_MODE == 0 && TERMINATE_EARLY
        if (dst.a > 0.95) break;
#endif

        t += stepDistance;
        if (t > tfar) break;
        pos += dir * stepDistance;
    }

    imageStore(outColor, px, clamp(dst, 0.0, 1.0));

#if WANT_DEPTH
    vec4 clip = mvp * vec4(maxDiffPos, 1.0);
    float z01 = clamp((clip.z / clip.w + 1.0) * 0.5, 0.0, 1.0);
    imageStore(outDepth, px, uvec4(uint(z01 * DEPTH_SCALE)));
#endif
}
`

// specializationSource renders the compute shader for one point in the
// configuration lattice: a `#version` header followed by one `#define`
// per flag (1 when on, 0 when off), the MIP mode and depth-format
// defines, and then the shared kernel body.
func specializationSource(cfg Config, wantDepth bool) string {
	var b strings.Builder
	b.WriteString("#version 430 core\n")
	writeFlag(&b, "SPACE_SKIPPING", cfg.SpaceSkipping)
	writeFlag(&b, "JITTERING", cfg.Jittering)
	writeFlag(&b, "LIGHTING", cfg.Lighting)
	writeFlag(&b, "OPCORR", cfg.OpacityCorrect)
	writeFlag(&b, "CLIP_MODE", cfg.ClipPlaneOn)
	writeFlag(&b, "TERMINATE_EARLY", cfg.TerminateEarly)
	writeFlag(&b, "ROI_USED", cfg.ROIUsed)
	writeFlag(&b, "SPHERICAL_ROI", cfg.SphericalROI)
	writeFlag(&b, "WANT_DEPTH", wantDepth)
	fmt.Fprintf(&b, "#define MIP_MODE %d\n", int(cfg.MipMode))
	switch cfg.DepthPrecision {
	case DepthU16:
		b.WriteString("#define DEPTH_FORMAT r16ui\n#define DEPTH_SCALE 65535.0\n")
	case DepthU32:
		b.WriteString("#define DEPTH_FORMAT r32ui\n#define DEPTH_SCALE 4294967295.0\n")
	default:
		b.WriteString("#define DEPTH_FORMAT r8ui\n#define DEPTH_SCALE 255.0\n")
	}
	b.WriteString(kernelComputeSrc)
	return b.String() + "\x00"
}

func writeFlag(b *strings.Builder, name string, on bool) {
	if on {
		fmt.Fprintf(b, "#define %s 1\n", name)
	} else {
		fmt.Fprintf(b, "#define %s 0\n", name)
	}
}

func compileComputeProgram(src string) (uint32, error) {
	shader := gl.CreateShader(gl.COMPUTE_SHADER)
	csrc, free := gl.Strs(src)
	gl.ShaderSource(shader, 1, csrc, nil)
	free()
	gl.CompileShader(shader)

	var status int32
	gl.GetShaderiv(shader, gl.COMPILE_STATUS, &status)
	if status == gl.FALSE {
		var logLen int32
		gl.GetShaderiv(shader, gl.INFO_LOG_LENGTH, &logLen)
		logBuf := strings.Repeat("\x00", int(logLen+1))
		gl.GetShaderInfoLog(shader, logLen, nil, gl.Str(logBuf))
		return 0, fmt.Errorf("raycast: compute shader compile failed: %s", logBuf)
	}

	prog := gl.CreateProgram()
	gl.AttachShader(prog, shader)
	gl.LinkProgram(prog)
	gl.DeleteShader(shader)

	var linkStatus int32
	gl.GetProgramiv(prog, gl.LINK_STATUS, &linkStatus)
	if linkStatus == gl.FALSE {
		var logLen int32
		gl.GetProgramiv(prog, gl.INFO_LOG_LENGTH, &logLen)
		logBuf := strings.Repeat("\x00", int(logLen+1))
		gl.GetProgramInfoLog(prog, logLen, nil, gl.Str(logBuf))
		return 0, fmt.Errorf("raycast: compute program link failed: %s", logBuf)
	}
	return prog, nil
}
