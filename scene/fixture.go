package scene

import (
	"errors"
	"fmt"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/qmuntal/gltf"
	"github.com/qmuntal/gltf/modeler"

	"lightsim/core"
)

// ErrEmptyFixture is returned when a fixture file carries no drawable mesh.
var ErrEmptyFixture = errors.New("scene: fixture has no mesh primitives")

// LoadFixture opens a .glb or .gltf luminaire model and returns it as a
// single node tree ready to be attached to a light. Only geometry, node
// transforms and base colour factors are read; the fixture body is drawn
// unlit so it stays visible in night mode.
func LoadFixture(path string) (*Node, error) {
	doc, err := gltf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("gltf open %q: %w", path, err)
	}

	materials := make([]*Material, len(doc.Materials))
	for i, gm := range doc.Materials {
		color := core.Color{R: 0.85, G: 0.85, B: 0.85, A: 1}
		if pbr := gm.PBRMetallicRoughness; pbr != nil {
			cf := pbr.BaseColorFactorOrDefault()
			color = core.Color{R: float32(cf[0]), G: float32(cf[1]), B: float32(cf[2]), A: float32(cf[3])}
		}
		materials[i] = NewUnlitMaterial(gm.Name, color)
	}

	meshes := make([][]*Mesh, len(doc.Meshes))
	prims := 0
	for mi, gm := range doc.Meshes {
		for pi, prim := range gm.Primitives {
			m, err := loadFixturePrimitive(doc, gm.Name, pi, prim)
			if err != nil {
				core.Logger().Warn("fixture primitive skipped", "path", path, "mesh", mi, "prim", pi, "err", err)
				continue
			}
			if prim.Material != nil && *prim.Material < len(materials) {
				m.Material = materials[*prim.Material]
			} else {
				m.Material = NewUnlitMaterial("Fixture", core.Color{R: 0.85, G: 0.85, B: 0.85, A: 1})
			}
			meshes[mi] = append(meshes[mi], m)
			prims++
		}
	}
	if prims == 0 {
		return nil, fmt.Errorf("%q: %w", path, ErrEmptyFixture)
	}

	nodes := make([]*Node, len(doc.Nodes))
	for i, gn := range doc.Nodes {
		name := gn.Name
		if name == "" {
			name = fmt.Sprintf("fixture_node_%d", i)
		}
		n := NewNode(name)

		t := gn.TranslationOrDefault()
		n.SetPosition(mgl32.Vec3{float32(t[0]), float32(t[1]), float32(t[2])})
		sc := gn.ScaleOrDefault()
		n.SetScale(mgl32.Vec3{float32(sc[0]), float32(sc[1]), float32(sc[2])})
		r := gn.RotationOrDefault() // [x, y, z, w]
		n.SetRotation(mgl32.Quat{W: float32(r[3]), V: mgl32.Vec3{float32(r[0]), float32(r[1]), float32(r[2])}})

		if gn.Mesh != nil && *gn.Mesh < len(meshes) {
			for pi, m := range meshes[*gn.Mesh] {
				child := NewNode(fmt.Sprintf("%s_prim%d", name, pi))
				child.Mesh = m
				n.AddChild(child)
			}
		}
		nodes[i] = n
	}

	hasParent := make([]bool, len(nodes))
	for i, gn := range doc.Nodes {
		for _, c := range gn.Children {
			if c < len(nodes) {
				nodes[i].AddChild(nodes[c])
				hasParent[c] = true
			}
		}
	}

	root := NewNode("Fixture")
	for i, n := range nodes {
		if !hasParent[i] {
			root.AddChild(n)
		}
	}
	return root, nil
}

func loadFixturePrimitive(doc *gltf.Document, meshName string, primIdx int, prim *gltf.Primitive) (*Mesh, error) {
	name := fmt.Sprintf("%s_p%d", meshName, primIdx)

	posIdx, ok := prim.Attributes[gltf.POSITION]
	if !ok {
		return nil, fmt.Errorf("no POSITION attribute")
	}
	positions, err := modeler.ReadPosition(doc, doc.Accessors[posIdx], nil)
	if err != nil {
		return nil, fmt.Errorf("positions: %w", err)
	}

	var normals [][3]float32
	if idx, ok := prim.Attributes[gltf.NORMAL]; ok {
		normals, _ = modeler.ReadNormal(doc, doc.Accessors[idx], nil)
	}

	verts := make([]core.Vertex, len(positions))
	for i, p := range positions {
		v := core.Vertex{
			Position: mgl32.Vec3{p[0], p[1], p[2]},
			Normal:   mgl32.Vec3{0, 1, 0},
			Color:    core.ColorWhite,
		}
		if i < len(normals) {
			v.Normal = mgl32.Vec3{normals[i][0], normals[i][1], normals[i][2]}
		}
		verts[i] = v
	}

	var indices []uint32
	if prim.Indices != nil {
		indices, err = modeler.ReadIndices(doc, doc.Accessors[*prim.Indices], nil)
		if err != nil {
			return nil, fmt.Errorf("indices: %w", err)
		}
	}

	return CreateMeshFromData(name, verts, indices), nil
}
