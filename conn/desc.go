package conn

import "strconv"

// Desc contains a description of a connection's server as reported by
// the handshake.
type Desc struct {
	Endpoint            Endpoint
	GitVersion          string
	Version             Version
	MaxBSONObjectSize   uint32
	MaxMessageSizeBytes uint32
	MaxWriteBatchSize   uint32
	WireVersion         Range
	Compression         []string
	ReadOnly            bool
}

// Version represents a server software version.
type Version struct {
	Desc  string
	Parts []uint8
}

// AtLeast ensures that the version is
// at least as large as the "other" version.
func (v *Version) AtLeast(other ...uint8) bool {
	for i := range other {
		if i == len(v.Parts) {
			return false
		}
		if v.Parts[i] > other[i] {
			return true
		}
		if v.Parts[i] < other[i] {
			return false
		}
	}
	return true
}

// String provides the string representation of the Version.
func (v *Version) String() string {
	if v.Desc == "" {
		var s string
		for i, p := range v.Parts {
			if i != 0 {
				s += "."
			}
			s += strconv.Itoa(int(p))
		}
		return s
	}

	return v.Desc
}

// Range is an inclusive range of wire protocol versions.
type Range struct {
	Min int32
	Max int32
}

// Includes returns whether the range includes the value.
func (r Range) Includes(v int32) bool {
	return v >= r.Min && v <= r.Max
}
