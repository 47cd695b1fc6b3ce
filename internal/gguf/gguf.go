package gguf

import (
	"bufio"
	"encoding/binary"
	"io"
	"os"
	"strings"
)

// Metadata holds the fields extracted from a GGUF container header.
// Zero values mean "not present in the header".
type Metadata struct {
	Name          string
	Architecture  string
	Quantization  string
	ContextLength int
}

// ParseError reports a corrupt, truncated or unsupported model header.
// Callers recover via the filename heuristic; it is never fatal.
type ParseError struct {
	Path   string
	Reason string
}

func (e *ParseError) Error() string { return "gguf parse " + e.Path + ": " + e.Reason }

// IsParseError reports whether err is a header parse failure.
func IsParseError(err error) bool {
	_, ok := err.(*ParseError)
	return ok
}

const ggufMagic = "GGUF"

// GGUF metadata value types.
const (
	typeUint8   = 0
	typeInt8    = 1
	typeUint16  = 2
	typeInt16   = 3
	typeUint32  = 4
	typeInt32   = 5
	typeFloat32 = 6
	typeBool    = 7
	typeString  = 8
	typeArray   = 9
	typeUint64  = 10
	typeInt64   = 11
	typeFloat64 = 12
)

// Hard limits to keep a malformed header from making us read the tensor
// payload (or allocate unbounded memory).
const (
	maxKVCount   = 1 << 16
	maxStringLen = 1 << 20
	maxArrayLen  = 1 << 22
)

var typeSizes = map[uint32]int64{
	typeUint8:   1,
	typeInt8:    1,
	typeUint16:  2,
	typeInt16:   2,
	typeUint32:  4,
	typeInt32:   4,
	typeFloat32: 4,
	typeBool:    1,
	typeUint64:  8,
	typeInt64:   8,
	typeFloat64: 8,
}

// Parse reads the GGUF prologue of the file at path and extracts model
// metadata. Only the header and key-value block are read, never tensor
// data, so cost is independent of file size. Any malformed input yields
// a *ParseError.
func Parse(path string) (Metadata, error) {
	f, err := os.Open(path)
	if err != nil {
		return Metadata{}, &ParseError{Path: path, Reason: err.Error()}
	}
	defer f.Close()
	return parse(path, bufio.NewReaderSize(f, 64*1024))
}

func parse(path string, r io.Reader) (Metadata, error) {
	fail := func(reason string) (Metadata, error) {
		return Metadata{}, &ParseError{Path: path, Reason: reason}
	}

	magic := make([]byte, 4)
	if _, err := io.ReadFull(r, magic); err != nil {
		return fail("truncated magic")
	}
	if string(magic) != ggufMagic {
		return fail("bad magic")
	}
	var version uint32
	if err := binary.Read(r, binary.LittleEndian, &version); err != nil {
		return fail("truncated version")
	}
	if version < 2 || version > 3 {
		return fail("unsupported version")
	}
	var tensorCount, kvCount uint64
	if err := binary.Read(r, binary.LittleEndian, &tensorCount); err != nil {
		return fail("truncated tensor count")
	}
	if err := binary.Read(r, binary.LittleEndian, &kvCount); err != nil {
		return fail("truncated kv count")
	}
	if kvCount > maxKVCount {
		return fail("implausible kv count")
	}

	var meta Metadata
	for i := uint64(0); i < kvCount; i++ {
		key, err := readString(r)
		if err != nil {
			return fail("truncated key")
		}
		var vtype uint32
		if err := binary.Read(r, binary.LittleEndian, &vtype); err != nil {
			return fail("truncated value type")
		}

		switch {
		case key == "general.architecture":
			s, err := readTypedString(r, vtype)
			if err != nil {
				return fail("bad architecture value")
			}
			meta.Architecture = s
		case key == "general.name":
			s, err := readTypedString(r, vtype)
			if err != nil {
				return fail("bad name value")
			}
			meta.Name = s
		case key == "general.file_type":
			n, ok, err := readUint(r, vtype)
			if err != nil {
				return fail("bad file_type value")
			}
			if ok {
				meta.Quantization = fileTypeLabel(n)
			}
		case strings.HasSuffix(key, ".context_length"):
			n, ok, err := readUint(r, vtype)
			if err != nil {
				return fail("bad context_length value")
			}
			if ok {
				meta.ContextLength = int(n)
			}
		default:
			// Unknown keys are skipped, not errors.
			if err := skipValue(r, vtype); err != nil {
				return fail("truncated value for " + key)
			}
		}
	}
	return meta, nil
}

// readString reads a GGUF string: u64 length followed by raw bytes.
func readString(r io.Reader) (string, error) {
	var n uint64
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return "", err
	}
	if n > maxStringLen {
		return "", io.ErrUnexpectedEOF
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", err
	}
	return string(b), nil
}

func readTypedString(r io.Reader, vtype uint32) (string, error) {
	if vtype != typeString {
		return "", io.ErrUnexpectedEOF
	}
	return readString(r)
}

// readUint reads any fixed-width integer value as uint64. The second
// return is false when the value type is not an integer (the value is
// still consumed so the walk can continue).
func readUint(r io.Reader, vtype uint32) (uint64, bool, error) {
	switch vtype {
	case typeUint8, typeInt8:
		var v uint8
		err := binary.Read(r, binary.LittleEndian, &v)
		return uint64(v), true, err
	case typeUint16, typeInt16:
		var v uint16
		err := binary.Read(r, binary.LittleEndian, &v)
		return uint64(v), true, err
	case typeUint32, typeInt32:
		var v uint32
		err := binary.Read(r, binary.LittleEndian, &v)
		return uint64(v), true, err
	case typeUint64, typeInt64:
		var v uint64
		err := binary.Read(r, binary.LittleEndian, &v)
		return v, true, err
	default:
		return 0, false, skipValue(r, vtype)
	}
}

func skipValue(r io.Reader, vtype uint32) error {
	if vtype == typeString {
		var n uint64
		if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
			return err
		}
		if n > maxStringLen {
			return io.ErrUnexpectedEOF
		}
		return discard(r, int64(n))
	}
	if vtype == typeArray {
		return skipArray(r)
	}
	size, ok := typeSizes[vtype]
	if !ok {
		return io.ErrUnexpectedEOF
	}
	return discard(r, size)
}

func skipArray(r io.Reader) error {
	var elemType uint32
	if err := binary.Read(r, binary.LittleEndian, &elemType); err != nil {
		return err
	}
	var count uint64
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return err
	}
	if count > maxArrayLen {
		return io.ErrUnexpectedEOF
	}
	// Fixed-size elements can be skipped in one hop. Strings (and nested
	// arrays, which the format does not actually produce) walk per element.
	if size, ok := typeSizes[elemType]; ok {
		return discard(r, size*int64(count))
	}
	for i := uint64(0); i < count; i++ {
		if err := skipValue(r, elemType); err != nil {
			return err
		}
	}
	return nil
}

func discard(r io.Reader, n int64) error {
	_, err := io.CopyN(io.Discard, r, n)
	return err
}

// fileTypeLabel maps the general.file_type enum to the conventional
// quantization label. Unknown values yield "" so the filename fallback
// can fill the field instead.
func fileTypeLabel(v uint64) string {
	switch v {
	case 0:
		return "F32"
	case 1:
		return "F16"
	case 2:
		return "Q4_0"
	case 3:
		return "Q4_1"
	case 7:
		return "Q8_0"
	case 8:
		return "Q5_0"
	case 9:
		return "Q5_1"
	case 10:
		return "Q2_K"
	case 11:
		return "Q3_K_S"
	case 12:
		return "Q3_K_M"
	case 13:
		return "Q3_K_L"
	case 14:
		return "Q4_K_S"
	case 15:
		return "Q4_K_M"
	case 16:
		return "Q5_K_S"
	case 17:
		return "Q5_K_M"
	case 18:
		return "Q6_K"
	case 19:
		return "IQ2_XXS"
	case 20:
		return "IQ2_XS"
	case 21:
		return "Q2_K_S"
	case 22:
		return "IQ3_XS"
	case 23:
		return "IQ3_XXS"
	case 24:
		return "IQ1_S"
	case 25:
		return "IQ4_NL"
	case 30:
		return "BF16"
	default:
		return ""
	}
}
