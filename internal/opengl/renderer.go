package opengl

import (
	"fmt"
	gomath "math"
	"strings"
	"unsafe"

	gl "github.com/go-gl/gl/v4.1-core/gl"
	"github.com/go-gl/mathgl/mgl32"

	"lightsim/core"
	"lightsim/scene"
)

// GPUMesh holds the OpenGL buffer objects for an uploaded mesh.
type GPUMesh struct {
	VAO        uint32
	VBO        uint32
	EBO        uint32
	IndexCount int32
	HasIndices bool
}

// Renderer is the OpenGL backend of the preview viewport. It shades every
// mesh with Blinn-Phong under the scene's ambient light and a single spot
// light, and uploads meshes and textures lazily on first draw.
type Renderer struct {
	program uint32
	present func()

	width, height int

	// Vertex stage
	mvpLoc               int32
	modelLoc             int32
	normalMatLoc         int32
	hasDisplacementLoc   int32
	displacementScaleLoc int32

	// Lights
	ambientColorLoc   int32
	cameraPosLoc      int32
	hasSpotLoc        int32
	spotPosLoc        int32
	spotDirLoc        int32
	spotColorLoc      int32
	spotIntensityLoc  int32
	spotRangeLoc      int32
	spotDecayLoc      int32
	spotInnerCosLoc   int32
	spotOuterCosLoc   int32

	// Material
	matAlbedoLoc    int32
	matSpecularLoc  int32
	matShininessLoc int32
	unlitLoc        int32
	doubleSidedLoc  int32
	hasTextureLoc   int32
	hasNormalTexLoc int32

	gpuMeshes map[*scene.Mesh]*GPUMesh
	textures  map[*scene.Texture]struct{}
}

const vertSrc = `
#version 410 core
layout(location = 0) in vec3 aPos;
layout(location = 1) in vec3 aNormal;
layout(location = 2) in vec2 aUV;
layout(location = 3) in vec4 aColor;
layout(location = 4) in vec3 aTangent;
layout(location = 5) in vec3 aBitangent;

uniform mat4 uMVP;
uniform mat4 uModel;
uniform mat3 uNormalMatrix;

uniform sampler2D displacementTex;
uniform bool  hasDisplacementTex;
uniform float displacementScale;

out vec3 vWorldPos;
out vec3 vNormal;
out vec3 vTangent;
out vec3 vBitangent;
out vec2 vUV;
out vec4 vColor;

void main() {
    vec3 pos = aPos;
    if (hasDisplacementTex) {
        pos += aNormal * texture(displacementTex, aUV).r * displacementScale;
    }
    vWorldPos  = vec3(uModel * vec4(pos, 1.0));
    vNormal    = normalize(uNormalMatrix * aNormal);
    vTangent   = normalize(uNormalMatrix * aTangent);
    vBitangent = normalize(uNormalMatrix * aBitangent);
    vUV    = aUV;
    vColor = aColor;
    gl_Position = uMVP * vec4(pos, 1.0);
}
` + "\x00"

const fragSrc = `
#version 410 core
in vec3 vWorldPos;
in vec3 vNormal;
in vec3 vTangent;
in vec3 vBitangent;
in vec2 vUV;
in vec4 vColor;

uniform vec3 ambientColor;
uniform vec3 cameraPos;

uniform bool  hasSpot;
uniform vec3  spotPos;
uniform vec3  spotDir;
uniform vec3  spotColor;
uniform float spotIntensity;
uniform float spotRange;
uniform float spotDecay;
uniform float spotInnerCos;
uniform float spotOuterCos;

uniform vec3  matAlbedo;
uniform vec3  matSpecular;
uniform float matShininess;
uniform bool  unlit;
uniform bool  doubleSided;

uniform sampler2D albedoTex;
uniform bool hasTexture;
uniform sampler2D normalTex;
uniform bool hasNormalTex;

out vec4 FragColor;

float distanceAttenuation(float d) {
    float falloff = 1.0 / max(pow(d, spotDecay), 0.01);
    if (spotRange > 0.0) {
        float r = clamp(1.0 - pow(d / spotRange, 4.0), 0.0, 1.0);
        falloff *= r * r;
    }
    return falloff;
}

void main() {
    vec3 base = matAlbedo * vColor.rgb;
    float alpha = vColor.a;
    if (hasTexture) {
        vec4 t = texture(albedoTex, vUV);
        base *= t.rgb;
        alpha *= t.a;
    }
    if (unlit) {
        FragColor = vec4(base, alpha);
        return;
    }

    vec3 N = normalize(vNormal);
    if (hasNormalTex) {
        mat3 TBN = mat3(normalize(vTangent), normalize(vBitangent), N);
        N = normalize(TBN * (texture(normalTex, vUV).rgb * 2.0 - 1.0));
    }
    if (doubleSided && !gl_FrontFacing) {
        N = -N;
    }

    vec3 color = ambientColor * base;

    if (hasSpot) {
        vec3 toLight = spotPos - vWorldPos;
        float d = length(toLight);
        vec3 L = toLight / max(d, 1e-4);
        float theta = dot(L, normalize(-spotDir));
        float cone = smoothstep(spotOuterCos, spotInnerCos, theta);
        float NdotL = max(dot(N, L), 0.0);
        if (cone > 0.0 && NdotL > 0.0) {
            vec3 radiance = spotColor * spotIntensity * cone * distanceAttenuation(d);
            vec3 V = normalize(cameraPos - vWorldPos);
            vec3 H = normalize(L + V);
            float spec = pow(max(dot(N, H), 0.0), max(matShininess, 1.0));
            color += radiance * (base * NdotL + matSpecular * spec);
        }
    }

    FragColor = vec4(color, alpha);
}
` + "\x00"

// NewRenderer compiles the shaders against the current GL context. present
// is called after every frame to show it, typically Window.SwapBuffers.
func NewRenderer(width, height int, present func()) (*Renderer, error) {
	if err := gl.Init(); err != nil {
		return nil, fmt.Errorf("gl init: %w", err)
	}

	prog, err := newProgram(vertSrc, fragSrc)
	if err != nil {
		return nil, fmt.Errorf("shader program: %w", err)
	}

	r := &Renderer{
		program:   prog,
		present:   present,
		gpuMeshes: make(map[*scene.Mesh]*GPUMesh),
		textures:  make(map[*scene.Texture]struct{}),
	}

	loc := func(name string) int32 {
		return gl.GetUniformLocation(prog, gl.Str(name+"\x00"))
	}
	r.mvpLoc = loc("uMVP")
	r.modelLoc = loc("uModel")
	r.normalMatLoc = loc("uNormalMatrix")
	r.hasDisplacementLoc = loc("hasDisplacementTex")
	r.displacementScaleLoc = loc("displacementScale")

	r.ambientColorLoc = loc("ambientColor")
	r.cameraPosLoc = loc("cameraPos")
	r.hasSpotLoc = loc("hasSpot")
	r.spotPosLoc = loc("spotPos")
	r.spotDirLoc = loc("spotDir")
	r.spotColorLoc = loc("spotColor")
	r.spotIntensityLoc = loc("spotIntensity")
	r.spotRangeLoc = loc("spotRange")
	r.spotDecayLoc = loc("spotDecay")
	r.spotInnerCosLoc = loc("spotInnerCos")
	r.spotOuterCosLoc = loc("spotOuterCos")

	r.matAlbedoLoc = loc("matAlbedo")
	r.matSpecularLoc = loc("matSpecular")
	r.matShininessLoc = loc("matShininess")
	r.unlitLoc = loc("unlit")
	r.doubleSidedLoc = loc("doubleSided")
	r.hasTextureLoc = loc("hasTexture")
	r.hasNormalTexLoc = loc("hasNormalTex")

	// Fixed texture units
	gl.UseProgram(prog)
	gl.Uniform1i(loc("albedoTex"), 0)
	gl.Uniform1i(loc("normalTex"), 1)
	gl.Uniform1i(loc("displacementTex"), 2)

	gl.Enable(gl.DEPTH_TEST)
	gl.Enable(gl.BLEND)
	gl.BlendFunc(gl.SRC_ALPHA, gl.ONE_MINUS_SRC_ALPHA)
	gl.CullFace(gl.BACK)

	r.Resize(width, height)
	return r, nil
}

// Resize sets the GL viewport to the new framebuffer size.
func (r *Renderer) Resize(width, height int) {
	if width <= 0 || height <= 0 {
		return
	}
	r.width, r.height = width, height
	gl.Viewport(0, 0, int32(width), int32(height))
}

// Render clears to the scene background, draws every visible mesh and
// presents the frame.
func (r *Renderer) Render(s *scene.Scene, cam *scene.Camera) error {
	bg := s.Background
	gl.ClearColor(bg.R, bg.G, bg.B, bg.A)
	gl.Clear(gl.COLOR_BUFFER_BIT | gl.DEPTH_BUFFER_BIT)

	gl.UseProgram(r.program)
	r.applyLights(s, cam)

	viewProj := cam.GetViewProjectionMatrix()
	for _, node := range s.GetVisibleNodes() {
		model := node.GetWorldMatrix()
		r.drawMesh(node.Mesh, viewProj.Mul4(model), model)
	}

	if code := gl.GetError(); code != gl.NO_ERROR {
		return fmt.Errorf("gl error 0x%x", code)
	}
	if r.present != nil {
		r.present()
	}
	return nil
}

func (r *Renderer) applyLights(s *scene.Scene, cam *scene.Camera) {
	ambient := core.Color{}
	for _, l := range s.Lights {
		if l != nil && l.Type == scene.LightTypeAmbient {
			ambient.R += l.Color.R * l.Intensity
			ambient.G += l.Color.G * l.Intensity
			ambient.B += l.Color.B * l.Intensity
		}
	}
	gl.Uniform3f(r.ambientColorLoc, ambient.R, ambient.G, ambient.B)
	gl.Uniform3f(r.cameraPosLoc, cam.Position.X(), cam.Position.Y(), cam.Position.Z())

	spot := s.FindLight(scene.LightTypeSpot)
	if spot == nil {
		gl.Uniform1i(r.hasSpotLoc, 0)
		return
	}
	dir := spot.Direction
	if dir.Len() > 0 {
		dir = dir.Normalize()
	}
	gl.Uniform1i(r.hasSpotLoc, 1)
	gl.Uniform3f(r.spotPosLoc, spot.Position.X(), spot.Position.Y(), spot.Position.Z())
	gl.Uniform3f(r.spotDirLoc, dir.X(), dir.Y(), dir.Z())
	gl.Uniform3f(r.spotColorLoc, spot.Color.R, spot.Color.G, spot.Color.B)
	gl.Uniform1f(r.spotIntensityLoc, spot.Intensity)
	gl.Uniform1f(r.spotRangeLoc, spot.Range)
	gl.Uniform1f(r.spotDecayLoc, spot.Decay)
	outer, inner := coneCosines(spot.SpotAngle, spot.Penumbra)
	gl.Uniform1f(r.spotOuterCosLoc, outer)
	gl.Uniform1f(r.spotInnerCosLoc, inner)
}

// coneCosines returns the cosines of the outer cone edge and of the angle
// where the penumbra fade starts.
func coneCosines(angle, penumbra float32) (outer, inner float32) {
	p := mgl32.Clamp(penumbra, 0, 1)
	outer = float32(gomath.Cos(float64(angle)))
	inner = float32(gomath.Cos(float64(angle * (1 - p))))
	return outer, inner
}

func (r *Renderer) drawMesh(mesh *scene.Mesh, mvp, model mgl32.Mat4) {
	gpu := r.ensureUploaded(mesh)
	if gpu == nil {
		return
	}

	normalMat := model.Mat3().Inv().Transpose()
	gl.UniformMatrix4fv(r.mvpLoc, 1, false, &mvp[0])
	gl.UniformMatrix4fv(r.modelLoc, 1, false, &model[0])
	gl.UniformMatrix3fv(r.normalMatLoc, 1, false, &normalMat[0])

	mat := mesh.Material
	if mat == nil {
		mat = scene.DefaultMaterial()
	}
	r.applyMaterial(mat)

	primitive := uint32(gl.TRIANGLES)
	if mesh.DrawMode == scene.DrawLines {
		primitive = gl.LINES
	}

	gl.BindVertexArray(gpu.VAO)
	if gpu.HasIndices {
		gl.DrawElements(primitive, gpu.IndexCount, gl.UNSIGNED_INT, nil)
	} else {
		gl.DrawArrays(primitive, 0, int32(len(mesh.Vertices)))
	}
	gl.BindVertexArray(0)
}

func (r *Renderer) applyMaterial(mat *scene.Material) {
	gl.Uniform3f(r.matAlbedoLoc, mat.Albedo.R, mat.Albedo.G, mat.Albedo.B)
	gl.Uniform3f(r.matSpecularLoc, mat.Specular.R, mat.Specular.G, mat.Specular.B)
	gl.Uniform1f(r.matShininessLoc, mat.Shininess)
	gl.Uniform1i(r.unlitLoc, boolToInt(mat.Unlit))

	if mat.Side == scene.DoubleSide {
		gl.Disable(gl.CULL_FACE)
		gl.Uniform1i(r.doubleSidedLoc, 1)
	} else {
		gl.Enable(gl.CULL_FACE)
		gl.Uniform1i(r.doubleSidedLoc, 0)
	}

	gl.Uniform1i(r.hasTextureLoc, boolToInt(r.bindTexture(gl.TEXTURE0, mat.DiffuseTexture)))
	gl.Uniform1i(r.hasNormalTexLoc, boolToInt(r.bindTexture(gl.TEXTURE1, mat.NormalTexture)))

	hasDisp := r.bindTexture(gl.TEXTURE2, mat.DisplacementTexture)
	gl.Uniform1i(r.hasDisplacementLoc, boolToInt(hasDisp))
	gl.Uniform1f(r.displacementScaleLoc, mat.DisplacementScale)
}

// bindTexture uploads tex on first use and binds it to unit. It reports
// whether a texture is bound.
func (r *Renderer) bindTexture(unit uint32, tex *scene.Texture) bool {
	if tex == nil {
		return false
	}
	if tex.GLID == 0 {
		if err := UploadTexture(tex); err != nil {
			core.Logger().Warn("texture upload failed", "texture", tex.Name, "err", err)
			return false
		}
		r.textures[tex] = struct{}{}
	}
	gl.ActiveTexture(unit)
	gl.BindTexture(gl.TEXTURE_2D, tex.GLID)
	return true
}

// ReleaseMesh frees the GPU buffers for mesh.
func (r *Renderer) ReleaseMesh(mesh *scene.Mesh) {
	if gpu, ok := r.gpuMeshes[mesh]; ok {
		gl.DeleteVertexArrays(1, &gpu.VAO)
		gl.DeleteBuffers(1, &gpu.VBO)
		if gpu.HasIndices {
			gl.DeleteBuffers(1, &gpu.EBO)
		}
		delete(r.gpuMeshes, mesh)
		mesh.GPUData = nil
	}
}

// ReleaseTexture frees the GPU copy of tex.
func (r *Renderer) ReleaseTexture(tex *scene.Texture) {
	if tex == nil {
		return
	}
	delete(r.textures, tex)
	DeleteTexture(tex)
}

// Destroy releases all GPU resources.
func (r *Renderer) Destroy() {
	for mesh := range r.gpuMeshes {
		r.ReleaseMesh(mesh)
	}
	for tex := range r.textures {
		r.ReleaseTexture(tex)
	}
	gl.DeleteProgram(r.program)
	r.program = 0
}

func (r *Renderer) ensureUploaded(mesh *scene.Mesh) *GPUMesh {
	if gpu, ok := r.gpuMeshes[mesh]; ok {
		return gpu
	}
	if len(mesh.Vertices) == 0 {
		return nil
	}

	stride := int32(unsafe.Sizeof(core.Vertex{}))

	gpu := &GPUMesh{
		IndexCount: int32(len(mesh.Indices)),
		HasIndices: len(mesh.Indices) > 0,
	}

	gl.GenVertexArrays(1, &gpu.VAO)
	gl.GenBuffers(1, &gpu.VBO)
	gl.BindVertexArray(gpu.VAO)

	gl.BindBuffer(gl.ARRAY_BUFFER, gpu.VBO)
	gl.BufferData(gl.ARRAY_BUFFER,
		len(mesh.Vertices)*int(stride),
		gl.Ptr(mesh.Vertices),
		gl.STATIC_DRAW)

	var v core.Vertex
	attribs := []struct {
		size   int32
		offset uintptr
	}{
		{3, unsafe.Offsetof(v.Position)},
		{3, unsafe.Offsetof(v.Normal)},
		{2, unsafe.Offsetof(v.UV)},
		{4, unsafe.Offsetof(v.Color)},
		{3, unsafe.Offsetof(v.Tangent)},
		{3, unsafe.Offsetof(v.Bitangent)},
	}
	for i, a := range attribs {
		gl.EnableVertexAttribArray(uint32(i))
		gl.VertexAttribPointerWithOffset(uint32(i), a.size, gl.FLOAT, false, stride, a.offset)
	}

	if gpu.HasIndices {
		gl.GenBuffers(1, &gpu.EBO)
		gl.BindBuffer(gl.ELEMENT_ARRAY_BUFFER, gpu.EBO)
		gl.BufferData(gl.ELEMENT_ARRAY_BUFFER,
			len(mesh.Indices)*4,
			gl.Ptr(mesh.Indices),
			gl.STATIC_DRAW)
	}

	gl.BindVertexArray(0)

	r.gpuMeshes[mesh] = gpu
	mesh.GPUData = gpu
	return gpu
}

// ── Shader helpers ────────────────────────────────────────────────────────────

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

func boolToInt(b bool) int32 {
	if b {
		return 1
	}
	return 0
}
