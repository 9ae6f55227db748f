package pointcloud

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"image/color"
	"io"
	"math"
	"strconv"

	"github.com/chenzhekl/goply"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
)

// PLYEncoding is the body encoding of a PLY file.
type PLYEncoding int

const (
	// PLYAscii writes one whitespace separated vertex per line.
	PLYAscii PLYEncoding = iota
	// PLYBinary writes little endian vertex records.
	PLYBinary
)

// ParsePLYEncoding parses "ascii" or "binary".
func ParsePLYEncoding(s string) (PLYEncoding, error) {
	switch s {
	case "", "ascii":
		return PLYAscii, nil
	case "binary":
		return PLYBinary, nil
	default:
		return PLYAscii, errors.Errorf("unknown PLY encoding %q", s)
	}
}

func (e PLYEncoding) String() string {
	if e == PLYBinary {
		return "binary"
	}
	return "ascii"
}

// ToPLY writes the cloud as a PLY file with float x, y, z in millimeters and, if the cloud has
// color, uchar red, green, blue.
func ToPLY(cloud PointCloud, out io.Writer, encoding PLYEncoding) error {
	w := bufio.NewWriter(out)
	hasColor := cloud.MetaData().HasColor

	format := "ascii"
	if encoding == PLYBinary {
		format = "binary_little_endian"
	}
	if _, err := fmt.Fprintf(w, "ply\nformat %s 1.0\nelement vertex %d\n"+
		"property float x\nproperty float y\nproperty float z\n", format, cloud.Size()); err != nil {
		return err
	}
	if hasColor {
		if _, err := fmt.Fprint(w, "property uchar red\nproperty uchar green\nproperty uchar blue\n"); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprint(w, "end_header\n"); err != nil {
		return err
	}

	var err error
	record := make([]byte, 15)
	cloud.Iterate(0, 0, func(p r3.Vector, d Data) bool {
		var r, g, b uint8
		if d != nil && d.HasColor() {
			r, g, b = d.RGB255()
		}
		switch encoding {
		case PLYBinary:
			binary.LittleEndian.PutUint32(record[0:], math.Float32bits(float32(p.X)))
			binary.LittleEndian.PutUint32(record[4:], math.Float32bits(float32(p.Y)))
			binary.LittleEndian.PutUint32(record[8:], math.Float32bits(float32(p.Z)))
			n := 12
			if hasColor {
				record[12], record[13], record[14] = r, g, b
				n = 15
			}
			_, err = w.Write(record[:n])
		default:
			line := formatPLYFloat(p.X) + " " + formatPLYFloat(p.Y) + " " + formatPLYFloat(p.Z)
			if hasColor {
				line += fmt.Sprintf(" %d %d %d", r, g, b)
			}
			_, err = fmt.Fprintln(w, line)
		}
		return err == nil
	})
	if err != nil {
		return err
	}
	return w.Flush()
}

func formatPLYFloat(f float64) string {
	return strconv.FormatFloat(float64(float32(f)), 'f', -1, 32)
}

// ReadPLY reads an ascii PLY file's vertices.
func ReadPLY(in io.Reader) (pc PointCloud, err error) {
	// goply panics on malformed input.
	defer func() {
		if r := recover(); r != nil {
			pc = nil
			err = errors.Errorf("invalid ply file: %v", r)
		}
	}()

	ply := goply.New(in)
	vertices := ply.Elements("vertex")
	pc = NewWithPrealloc(len(vertices))
	for i := range vertices {
		vertex := vertices[i]
		x, okX := plyNumber(vertex.Property("x"))
		y, okY := plyNumber(vertex.Property("y"))
		z, okZ := plyNumber(vertex.Property("z"))
		if !okX || !okY || !okZ {
			return nil, errors.Errorf("vertex %d is missing a coordinate", i)
		}
		var d Data = NewBasicData()
		r, okR := plyNumber(vertex.Property("red"))
		g, okG := plyNumber(vertex.Property("green"))
		b, okB := plyNumber(vertex.Property("blue"))
		if okR && okG && okB {
			d = NewColoredData(color.NRGBA{R: uint8(r), G: uint8(g), B: uint8(b), A: 255})
		}
		if err := pc.Set(NewVector(x, y, z), d); err != nil {
			return nil, err
		}
	}
	return pc, nil
}

func plyNumber(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case int8:
		return float64(n), true
	case uint8:
		return float64(n), true
	case int16:
		return float64(n), true
	case uint16:
		return float64(n), true
	case int32:
		return float64(n), true
	case uint32:
		return float64(n), true
	default:
		return 0, false
	}
}
