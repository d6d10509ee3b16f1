package scene

import (
	stdmath "math"

	"github.com/go-gl/mathgl/mgl32"

	"lightsim/core"
)

// CreatePlane generates a flat plane in the XZ plane facing +Y, centred on
// the origin, split into segX × segZ quads. UV (0,0) sits at the -X/-Z
// corner so the top row of an image maps to the far edge.
func CreatePlane(width, depth float32, segX, segZ int) *Mesh {
	if segX < 1 {
		segX = 1
	}
	if segZ < 1 {
		segZ = 1
	}

	vertices := make([]core.Vertex, 0, (segX+1)*(segZ+1))
	indices := make([]uint32, 0, segX*segZ*6)

	halfW := width / 2.0
	halfD := depth / 2.0

	for z := 0; z <= segZ; z++ {
		for x := 0; x <= segX; x++ {
			u := float32(x) / float32(segX)
			v := float32(z) / float32(segZ)

			vertices = append(vertices, core.Vertex{
				Position: mgl32.Vec3{-halfW + u*width, 0, -halfD + v*depth},
				Normal:   mgl32.Vec3{0, 1, 0},
				UV:       mgl32.Vec2{u, v},
				Color:    core.ColorWhite,
			})
		}
	}

	stride := uint32(segX + 1)
	for z := 0; z < segZ; z++ {
		for x := 0; x < segX; x++ {
			topLeft := uint32(z)*stride + uint32(x)
			topRight := topLeft + 1
			bottomLeft := topLeft + stride
			bottomRight := bottomLeft + 1

			indices = append(indices, topLeft, bottomLeft, topRight)
			indices = append(indices, topRight, bottomLeft, bottomRight)
		}
	}

	m := CreateMeshFromData("Plane", vertices, indices)
	ComputeTangents(m)
	return m
}

// CreateSpotHelper builds a wireframe cone of unit length opening along -Y
// from an apex at the origin, matching a spot light of the given half-angle.
// Scale the owning node along Y to stretch it to the light's target.
func CreateSpotHelper(angle float32, segments int, color core.Color) *Mesh {
	if segments < 3 {
		segments = 3
	}
	radius := float32(stdmath.Tan(float64(angle)))

	vertices := []core.Vertex{{Position: mgl32.Vec3{}, Color: color}}
	var indices []uint32

	for i := 0; i < segments; i++ {
		theta := float64(i) * 2.0 * stdmath.Pi / float64(segments)
		vertices = append(vertices, core.Vertex{
			Position: mgl32.Vec3{
				float32(stdmath.Cos(theta)) * radius,
				-1,
				float32(stdmath.Sin(theta)) * radius,
			},
			Color: color,
		})
	}

	for i := 1; i <= segments; i++ {
		next := i%segments + 1
		indices = append(indices, uint32(i), uint32(next))
		// Every other ring vertex gets a spoke back to the apex.
		if i%2 == 1 {
			indices = append(indices, 0, uint32(i))
		}
	}

	m := CreateMeshFromData("SpotHelper", vertices, indices)
	m.DrawMode = DrawLines
	m.Material = NewUnlitMaterial("SpotHelper", color)
	return m
}
