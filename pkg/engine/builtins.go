package engine

import (
	"fmt"
	"strings"

	zygo "github.com/glycerine/zygomys/zygo"
	"github.com/go-gl/mathgl/mgl32"

	"github.com/chazu/voxfield/pkg/csg"
	"github.com/chazu/voxfield/pkg/kernel"
)

// ---------------------------------------------------------------------------
// Scene builder
// ---------------------------------------------------------------------------

// sceneBuilder collects the shapes and containers created by one
// evaluation.
type sceneBuilder struct {
	k     kernel.Kernel
	arena *csg.Arena
	root  *csg.Container
}

func newSceneBuilder(k kernel.Kernel) *sceneBuilder {
	return &sceneBuilder{k: k, arena: csg.NewArena()}
}

// scene returns the evaluated scene. A program that never called (scene ...)
// yields an empty generator.
func (b *sceneBuilder) scene() *Scene {
	root := b.root
	if root == nil {
		root = csg.NewContainer(csg.NoShape)
	}
	return &Scene{Arena: b.arena, Generator: csg.NewGenerator(b.arena, root)}
}

// ---------------------------------------------------------------------------
// Custom Sexp types for passing Go values through the zygomys environment
// ---------------------------------------------------------------------------

// sexpVec3 wraps a mgl32.Vec3.
type sexpVec3 struct {
	vec mgl32.Vec3
}

func (v *sexpVec3) SexpString(ps *zygo.PrintState) string {
	return fmt.Sprintf("(vec3 %g %g %g)", v.vec[0], v.vec[1], v.vec[2])
}
func (v *sexpVec3) Type() *zygo.RegisteredType { return nil }

// sexpNode wraps a CSG container so shapes can be combined by later calls.
type sexpNode struct {
	c     *csg.Container
	label string
}

func (n *sexpNode) SexpString(ps *zygo.PrintState) string {
	return fmt.Sprintf("(%s #%d children=%d)", n.label, n.c.Shape, len(n.c.Children()))
}
func (n *sexpNode) Type() *zygo.RegisteredType { return nil }

// ---------------------------------------------------------------------------
// Keyword argument parsing
// ---------------------------------------------------------------------------

// isKW checks if a Sexp is a preprocessed keyword string.
// Returns the keyword name (without prefix) and true if it is.
func isKW(s zygo.Sexp) (string, bool) {
	str, ok := s.(*zygo.SexpStr)
	if !ok || !strings.HasPrefix(str.S, kwPrefix) {
		return "", false
	}
	return str.S[len(kwPrefix):], true
}

// kwArgs holds the result of parsing a mixed positional+keyword argument list.
type kwArgs struct {
	kw         map[string]zygo.Sexp
	positional []zygo.Sexp
}

// parseArgs separates args into keyword and positional arguments.
func parseArgs(args []zygo.Sexp) kwArgs {
	result := kwArgs{kw: make(map[string]zygo.Sexp)}
	for i := 0; i < len(args); i++ {
		name, ok := isKW(args[i])
		if !ok {
			result.positional = append(result.positional, args[i])
			continue
		}
		if i+1 < len(args) {
			result.kw[name] = args[i+1]
			i++
		} else {
			// A trailing keyword is a flag with no value.
			result.kw[name] = zygo.SexpNull
		}
	}
	return result
}

// unknownKeyword returns an error naming the first keyword not in allowed.
func (a kwArgs) unknownKeyword(fn string, allowed ...string) error {
	for name := range a.kw {
		found := false
		for _, ok := range allowed {
			if name == ok {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("%s: unknown keyword :%s (expected one of :%s)", fn, name, strings.Join(allowed, " :"))
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// Value extraction helpers
// ---------------------------------------------------------------------------

// toFloat32 extracts a number from a Sexp (SexpInt or SexpFloat).
func toFloat32(s zygo.Sexp) (float32, error) {
	switch v := s.(type) {
	case *zygo.SexpInt:
		return float32(v.Val), nil
	case *zygo.SexpFloat:
		return float32(v.Val), nil
	}
	return 0, fmt.Errorf("expected number, got %T (%s)", s, s.SexpString(nil))
}

// toVec3 extracts a Vec3 from a sexpVec3. A bare number n is accepted as
// (vec3 n n n) when uniform is set.
func toVec3(s zygo.Sexp, uniform bool) (mgl32.Vec3, error) {
	if v, ok := s.(*sexpVec3); ok {
		return v.vec, nil
	}
	if uniform {
		if f, err := toFloat32(s); err == nil {
			return mgl32.Vec3{f, f, f}, nil
		}
	}
	return mgl32.Vec3{}, fmt.Errorf("expected vec3, got %T (%s)", s, s.SexpString(nil))
}

// toNode extracts the container from a sexpNode.
func toNode(s zygo.Sexp) (*csg.Container, error) {
	if n, ok := s.(*sexpNode); ok {
		return n.c, nil
	}
	return nil, fmt.Errorf("expected shape, got %T (%s)", s, s.SexpString(nil))
}

// eulerToQuat converts XYZ Euler angles in degrees to a quaternion that
// applies X first, then Y, then Z.
func eulerToQuat(deg mgl32.Vec3) mgl32.Quat {
	qx := mgl32.QuatRotate(mgl32.DegToRad(deg[0]), mgl32.Vec3{1, 0, 0})
	qy := mgl32.QuatRotate(mgl32.DegToRad(deg[1]), mgl32.Vec3{0, 1, 0})
	qz := mgl32.QuatRotate(mgl32.DegToRad(deg[2]), mgl32.Vec3{0, 0, 1})
	return qz.Mul(qy).Mul(qx)
}

// contains reports whether target is c or one of its descendants.
func contains(c, target *csg.Container) bool {
	if c == target {
		return true
	}
	for _, child := range c.Children() {
		if contains(child, target) {
			return true
		}
	}
	return false
}

// ---------------------------------------------------------------------------
// Placement
// ---------------------------------------------------------------------------

// placementKeywords are accepted by every shape builtin.
var placementKeywords = []string{"at", "rotate", "scale"}

// place applies :at, :rotate and :scale to s.
func place(fn string, s *csg.Shape, pa kwArgs) error {
	if v, ok := pa.kw["at"]; ok {
		p, err := toVec3(v, false)
		if err != nil {
			return fmt.Errorf("%s: at: %w", fn, err)
		}
		s.At(p)
	}
	if v, ok := pa.kw["rotate"]; ok {
		deg, err := toVec3(v, false)
		if err != nil {
			return fmt.Errorf("%s: rotate: %w", fn, err)
		}
		s.Rotated(eulerToQuat(deg))
	}
	if v, ok := pa.kw["scale"]; ok {
		sc, err := toVec3(v, true)
		if err != nil {
			return fmt.Errorf("%s: scale: %w", fn, err)
		}
		if sc[0] == 0 || sc[1] == 0 || sc[2] == 0 {
			return fmt.Errorf("%s: scale: components must be non-zero, got %v", fn, sc)
		}
		s.Scaled(sc)
	}
	return nil
}

// requireFloat reads a mandatory numeric keyword.
func requireFloat(fn, key string, pa kwArgs) (float32, error) {
	v, ok := pa.kw[key]
	if !ok {
		return 0, fmt.Errorf("%s requires :%s", fn, key)
	}
	f, err := toFloat32(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %s: %w", fn, key, err)
	}
	return f, nil
}

// ---------------------------------------------------------------------------
// Builtin registration
// ---------------------------------------------------------------------------

// registerBuiltins installs the scene DSL builtins into a zygomys
// environment. Shapes are added to b's arena as they are created.
//
// Source code must be preprocessed with preprocessSource() before evaluation so
// that :keyword tokens are converted to recognizable string literals.
func registerBuiltins(env *zygo.Zlisp, b *sceneBuilder) {

	// shape wraps a freshly built shape in its own container.
	shape := func(fn string, s *csg.Shape, pa kwArgs) (zygo.Sexp, error) {
		if err := place(fn, s, pa); err != nil {
			return zygo.SexpNull, err
		}
		id := b.arena.Add(s)
		return &sexpNode{c: csg.NewContainer(id), label: fn}, nil
	}

	// -----------------------------------------------------------------------
	// (vec3 1 2 3)
	// -----------------------------------------------------------------------
	env.AddFunction("vec3", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		if len(args) != 3 {
			return zygo.SexpNull, fmt.Errorf("vec3 requires exactly 3 arguments, got %d", len(args))
		}
		var v mgl32.Vec3
		for i, axis := range []string{"x", "y", "z"} {
			f, err := toFloat32(args[i])
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("vec3: %s: %w", axis, err)
			}
			v[i] = f
		}
		return &sexpVec3{vec: v}, nil
	})

	// -----------------------------------------------------------------------
	// (box :size (vec3 2 1 1) :round 0.1 :at (vec3 0 0 0) :rotate (vec3 0 0 45))
	// -----------------------------------------------------------------------
	env.AddFunction("box", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs(args)
		if err := pa.unknownKeyword("box", append([]string{"size", "round"}, placementKeywords...)...); err != nil {
			return zygo.SexpNull, err
		}
		v, ok := pa.kw["size"]
		if !ok {
			return zygo.SexpNull, fmt.Errorf("box requires :size")
		}
		size, err := toVec3(v, true)
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("box: size: %w", err)
		}
		var round float32
		if v, ok := pa.kw["round"]; ok {
			if round, err = toFloat32(v); err != nil {
				return zygo.SexpNull, fmt.Errorf("box: round: %w", err)
			}
		}
		s, err := csg.NewBox(b.k, size.Mul(0.5), round)
		if err != nil {
			return zygo.SexpNull, err
		}
		return shape("box", s, pa)
	})

	// -----------------------------------------------------------------------
	// (sphere :radius 1 :at (vec3 0 0 0))
	// -----------------------------------------------------------------------
	env.AddFunction("sphere", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs(args)
		if err := pa.unknownKeyword("sphere", append([]string{"radius"}, placementKeywords...)...); err != nil {
			return zygo.SexpNull, err
		}
		r, err := requireFloat("sphere", "radius", pa)
		if err != nil {
			return zygo.SexpNull, err
		}
		s, err := csg.NewSphere(b.k, r)
		if err != nil {
			return zygo.SexpNull, err
		}
		return shape("sphere", s, pa)
	})

	// -----------------------------------------------------------------------
	// (cylinder :radius 0.5 :height 2 :rotate (vec3 90 0 0))
	// -----------------------------------------------------------------------
	env.AddFunction("cylinder", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs(args)
		if err := pa.unknownKeyword("cylinder", append([]string{"radius", "height"}, placementKeywords...)...); err != nil {
			return zygo.SexpNull, err
		}
		r, err := requireFloat("cylinder", "radius", pa)
		if err != nil {
			return zygo.SexpNull, err
		}
		h, err := requireFloat("cylinder", "height", pa)
		if err != nil {
			return zygo.SexpNull, err
		}
		s, err := csg.NewCylinder(b.k, r, h)
		if err != nil {
			return zygo.SexpNull, err
		}
		return shape("cylinder", s, pa)
	})

	// -----------------------------------------------------------------------
	// (add base child ...) and (subtract base child ...)
	//
	// Children are placed in the base shape's local frame. The base is
	// returned so calls can nest.
	// -----------------------------------------------------------------------
	combine := func(op csg.Combination) zygo.ZlispUserFunction {
		return func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
			if len(args) < 1 {
				return zygo.SexpNull, fmt.Errorf("%s requires a base shape", op)
			}
			base, err := toNode(args[0])
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("%s: base: %w", op, err)
			}
			for i, arg := range args[1:] {
				child, err := toNode(arg)
				if err != nil {
					return zygo.SexpNull, fmt.Errorf("%s: child %d: %w", op, i+1, err)
				}
				if contains(child, base) {
					return zygo.SexpNull, fmt.Errorf("%s: child %d already contains the base shape", op, i+1)
				}
				if _, err := base.Attach(child, op); err != nil {
					return zygo.SexpNull, fmt.Errorf("%s: child %d: %w", op, i+1, err)
				}
			}
			return args[0], nil
		}
	}
	env.AddFunction("add", combine(csg.Add))
	env.AddFunction("subtract", combine(csg.Subtract))

	// -----------------------------------------------------------------------
	// (group child ...)
	//
	// A shapeless container: the first child is the base value and the rest
	// are unioned onto it.
	// -----------------------------------------------------------------------
	env.AddFunction("group", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		g := csg.NewContainer(csg.NoShape)
		for i, arg := range args {
			child, err := toNode(arg)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("group: child %d: %w", i, err)
			}
			if _, err := g.Attach(child, csg.Add); err != nil {
				return zygo.SexpNull, fmt.Errorf("group: child %d: %w", i, err)
			}
		}
		return &sexpNode{c: g, label: "group"}, nil
	})

	// -----------------------------------------------------------------------
	// (scene root)
	// -----------------------------------------------------------------------
	env.AddFunction("scene", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		if len(args) != 1 {
			return zygo.SexpNull, fmt.Errorf("scene requires exactly 1 root shape, got %d", len(args))
		}
		root, err := toNode(args[0])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("scene: %w", err)
		}
		b.root = root
		return args[0], nil
	})
}
