package features

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"math"
)

// Vector is the assembled model input. It cannot be modified after Assemble.
type Vector struct {
	values        []float32
	schemaVersion string
}

// Len returns the number of elements
func (v Vector) Len() int { return len(v.values) }

// At returns element i
func (v Vector) At(i int) float32 { return v.values[i] }

// Values returns a copy of the elements
func (v Vector) Values() []float32 { return append([]float32(nil), v.values...) }

// SchemaVersion names the schema that produced the vector
func (v Vector) SchemaVersion() string { return v.schemaVersion }

// Key is a stable digest of the schema version and element bits
func (v Vector) Key() string {
	h := sha256.New()
	h.Write([]byte(v.schemaVersion))
	var buf [4]byte
	for _, f := range v.values {
		binary.LittleEndian.PutUint32(buf[:], math.Float32bits(f))
		h.Write(buf[:])
	}
	return hex.EncodeToString(h.Sum(nil))
}
