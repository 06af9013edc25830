// Package identifier implements the union identifier (numeric id or name)
// used to address streams, topics, partitions and consumer groups.
package identifier

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/ridgeline/flowvault/internal/flowerr"
)

// Kind distinguishes a numeric identifier from a name identifier on the wire.
type Kind uint8

const (
	KindNumeric Kind = 1
	KindName    Kind = 2
)

const (
	MinNameLength = 1
	MaxNameLength = 255
)

// Identifier is either a 32-bit numeric id or a case-insensitive name.
// Exactly one of the two forms is populated; Kind reports which.
type Identifier struct {
	kind Kind
	num  uint32
	name string
}

// Numeric builds a numeric identifier.
func Numeric(id uint32) Identifier {
	return Identifier{kind: KindNumeric, num: id}
}

// Name builds a name identifier, lower-casing it as names are
// case-insensitive throughout the system.
func Name(name string) (Identifier, error) {
	if err := ValidateName(name); err != nil {
		return Identifier{}, err
	}
	return Identifier{kind: KindName, name: strings.ToLower(name)}, nil
}

// ValidateName checks the name charset and length rules: 1-255 bytes,
// ASCII letters of either case, digits, '.', '_', '-'. Upper-case letters
// are accepted here; Name lower-cases them.
func ValidateName(name string) error {
	n := len(name)
	if n < MinNameLength || n > MaxNameLength {
		return flowerr.Newf(flowerr.KindInvalidInput, "identifier.ValidateName",
			"name length %d out of range [%d, %d]", n, MinNameLength, MaxNameLength)
	}
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		case r == '.' || r == '_' || r == '-':
		default:
			return flowerr.Newf(flowerr.KindInvalidInput, "identifier.ValidateName",
				"invalid character %q in name %q", r, name)
		}
	}
	return nil
}

func (id Identifier) Kind() Kind { return id.kind }
func (id Identifier) IsNumeric() bool { return id.kind == KindNumeric }
func (id Identifier) IsName() bool    { return id.kind == KindName }

// NumericValue returns the numeric id. Only meaningful when IsNumeric.
func (id Identifier) NumericValue() uint32 { return id.num }

// NameValue returns the lower-cased name. Only meaningful when IsName.
func (id Identifier) NameValue() string { return id.name }

func (id Identifier) String() string {
	if id.kind == KindNumeric {
		return fmt.Sprintf("%d", id.num)
	}
	return id.name
}

// Encode writes the wire form: kind:u8 | length:u8 | value_bytes.
func (id Identifier) Encode() []byte {
	if id.kind == KindNumeric {
		buf := make([]byte, 2+4)
		buf[0] = byte(KindNumeric)
		buf[1] = 4
		binary.LittleEndian.PutUint32(buf[2:], id.num)
		return buf
	}
	value := []byte(id.name)
	buf := make([]byte, 2+len(value))
	buf[0] = byte(KindName)
	buf[1] = byte(len(value))
	copy(buf[2:], value)
	return buf
}

// Decode parses the wire form produced by Encode, returning the identifier
// and the number of bytes consumed.
func Decode(data []byte) (Identifier, int, error) {
	const op = "identifier.Decode"
	if len(data) < 2 {
		return Identifier{}, 0, flowerr.New(flowerr.KindInvalidInput, op, "truncated identifier header")
	}
	kind := Kind(data[0])
	length := int(data[1])
	if len(data) < 2+length {
		return Identifier{}, 0, flowerr.New(flowerr.KindInvalidInput, op, "truncated identifier value")
	}
	value := data[2 : 2+length]
	switch kind {
	case KindNumeric:
		if length != 4 {
			return Identifier{}, 0, flowerr.Newf(flowerr.KindInvalidInput, op, "numeric identifier length %d != 4", length)
		}
		return Numeric(binary.LittleEndian.Uint32(value)), 2 + length, nil
	case KindName:
		ident, err := Name(string(value))
		if err != nil {
			return Identifier{}, 0, err
		}
		return ident, 2 + length, nil
	default:
		return Identifier{}, 0, flowerr.Newf(flowerr.KindInvalidInput, op, "unknown identifier kind %d", kind)
	}
}

// Registry maps names and numeric ids onto a shared id space for a single
// entity kind (streams, topics, partitions, groups) within one parent scope.
// It does not own the entities themselves, only the lookup tables.
type Registry struct {
	byName map[string]uint32
	nextID uint32
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]uint32)}
}

// Reserve allocates a fresh numeric id and binds it to name.
func (r *Registry) Reserve(name string) (uint32, error) {
	lower := strings.ToLower(name)
	if _, exists := r.byName[lower]; exists {
		return 0, flowerr.Newf(flowerr.KindAlreadyExists, "identifier.Registry.Reserve", "name %q already registered", name)
	}
	r.nextID++
	r.byName[lower] = r.nextID
	return r.nextID, nil
}

// Bind records an explicit id/name pair, e.g. when replaying the state log.
// It advances nextID so future Reserve calls never collide.
func (r *Registry) Bind(name string, id uint32) error {
	lower := strings.ToLower(name)
	if _, exists := r.byName[lower]; exists {
		return flowerr.Newf(flowerr.KindAlreadyExists, "identifier.Registry.Bind", "name %q already registered", name)
	}
	r.byName[lower] = id
	if id > r.nextID {
		r.nextID = id
	}
	return nil
}

// Resolve looks up the numeric id for a name identifier, and validates a
// numeric identifier by returning it unchanged.
func (r *Registry) Resolve(id Identifier) (uint32, bool) {
	if id.IsNumeric() {
		return id.NumericValue(), true
	}
	numID, ok := r.byName[id.NameValue()]
	return numID, ok
}

// Release drops a name→id binding, e.g. on delete.
func (r *Registry) Release(name string) {
	delete(r.byName, strings.ToLower(name))
}

// Names returns a snapshot of all registered names.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.byName))
	for name := range r.byName {
		names = append(names, name)
	}
	return names
}
