package kernel

import "fmt"

// ---------------------------------------------------------------------------
// Mesh validation (errors + warnings)
// ---------------------------------------------------------------------------

// degenerateArea is the area below which a triangle is reported degenerate.
const degenerateArea = 1e-12

// ValidationError is a blocking mesh problem.
type ValidationError struct {
	Triangle int
	Message  string
}

func (e ValidationError) Error() string {
	if e.Triangle >= 0 {
		return fmt.Sprintf("triangle %d: %s", e.Triangle, e.Message)
	}
	return e.Message
}

// ValidationWarning is an advisory mesh problem.
type ValidationWarning struct {
	Triangle int
	Message  string
}

func (w ValidationWarning) String() string {
	return fmt.Sprintf("triangle %d: %s", w.Triangle, w.Message)
}

// Validate checks the index buffer and triangle shapes. Errors are
// returned separately from warnings so callers can skip bad triangles and
// still process the rest.
func (m *Mesh) Validate() ([]ValidationError, []ValidationWarning) {
	var errs []ValidationError
	var warnings []ValidationWarning

	if len(m.Indices)%3 != 0 {
		errs = append(errs, ValidationError{
			Triangle: -1,
			Message:  fmt.Sprintf("index count %d is not a multiple of 3", len(m.Indices)),
		})
	}

	for i := 0; i < m.TriangleCount(); i++ {
		a, b, c, ok := m.Triangle(i)
		if !ok {
			errs = append(errs, ValidationError{
				Triangle: i,
				Message:  fmt.Sprintf("index out of range (have %d vertices)", len(m.Vertices)),
			})
			continue
		}
		area := b.Position.Sub(a.Position).Cross(c.Position.Sub(a.Position)).Len() / 2
		if area <= degenerateArea {
			warnings = append(warnings, ValidationWarning{
				Triangle: i,
				Message:  fmt.Sprintf("degenerate triangle (area %.3g)", area),
			})
		}
	}

	return errs, warnings
}
