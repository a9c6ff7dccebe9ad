package codec

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Variable marks the last dimension of a Shape as having a per-value length.
const Variable = -1

// ErrBadArraysize is returned for arraysize attributes that do not follow the grammar.
var ErrBadArraysize = errors.New("malformed arraysize")

// Shape is a parsed arraysize: the extent of each dimension, first dimension varying
// fastest. Only the last dimension may be Variable.
type Shape struct {
	Dims []int
}

// ParseArraysize parses an arraysize attribute such as "3", "2x4", "*", "10x*" or "5*".
// An empty string gives the scalar (zero-dimensional) shape. A bounded variable
// dimension like "5*" is treated as Variable since its actual length is only known
// per value.
func ParseArraysize(s string) (Shape, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Shape{}, nil
	}
	parts := strings.Split(s, "x")
	dims := make([]int, len(parts))
	for i, p := range parts {
		p = strings.TrimSpace(p)
		last := i == len(parts)-1
		if strings.HasSuffix(p, "*") {
			if !last {
				return Shape{}, fmt.Errorf("%w: %q: only the last dimension may be variable", ErrBadArraysize, s)
			}
			if bound := strings.TrimSuffix(p, "*"); bound != "" {
				if n, err := strconv.Atoi(bound); err != nil || n < 0 {
					return Shape{}, fmt.Errorf("%w: %q", ErrBadArraysize, s)
				}
			}
			dims[i] = Variable
			continue
		}
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 || (n == 0 && !last) {
			return Shape{}, fmt.Errorf("%w: %q", ErrBadArraysize, s)
		}
		dims[i] = n
	}
	return Shape{Dims: dims}, nil
}

// MustShape is like ParseArraysize but panics on error. It is meant for literals.
func MustShape(s string) Shape {
	sh, err := ParseArraysize(s)
	if err != nil {
		panic(err)
	}
	return sh
}

// NDim returns the number of dimensions.
func (s Shape) NDim() int {
	return len(s.Dims)
}

// IsVariable reports whether the last dimension is Variable.
func (s Shape) IsVariable() bool {
	return len(s.Dims) > 0 && s.Dims[len(s.Dims)-1] == Variable
}

// SliceSize returns the number of elements in one unit of the last dimension, that is
// the product of all dimensions except the last.
func (s Shape) SliceSize() int {
	n := 1
	for i := 0; i < len(s.Dims)-1; i++ {
		n *= s.Dims[i]
	}
	return n
}

// Count returns the fixed element count, or Variable if the shape is variable.
func (s Shape) Count() int {
	if s.IsVariable() {
		return Variable
	}
	n := 1
	for _, d := range s.Dims {
		n *= d
	}
	return n
}

// IsScalar reports whether the shape describes exactly one element. "1", "1x1" and the
// empty shape all qualify.
func (s Shape) IsScalar() bool {
	return s.Count() == 1
}

// Tail returns the shape without its first dimension.
func (s Shape) Tail() Shape {
	if len(s.Dims) == 0 {
		return Shape{}
	}
	return Shape{Dims: append([]int(nil), s.Dims[1:]...)}
}

// Prepend returns a shape with an extra leading dimension.
func (s Shape) Prepend(d int) Shape {
	return Shape{Dims: append([]int{d}, s.Dims...)}
}

// String formats the shape as an arraysize attribute.
func (s Shape) String() string {
	parts := make([]string, len(s.Dims))
	for i, d := range s.Dims {
		if d == Variable {
			parts[i] = "*"
		} else {
			parts[i] = strconv.Itoa(d)
		}
	}
	return strings.Join(parts, "x")
}

// Equal reports whether two shapes have the same dimensions.
func (s Shape) Equal(o Shape) bool {
	if len(s.Dims) != len(o.Dims) {
		return false
	}
	for i := range s.Dims {
		if s.Dims[i] != o.Dims[i] {
			return false
		}
	}
	return true
}

// itemCount returns the number of elements for a variable value holding n units of the
// last dimension.
func (s Shape) itemCount(units int) int {
	return units * s.SliceSize()
}

// roundUp returns the smallest multiple of slice that is at least n.
func roundUp(n, slice int) int {
	if slice <= 1 {
		return n
	}
	return ((n + slice - 1) / slice) * slice
}
