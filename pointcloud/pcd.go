package pointcloud

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"image/color"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
)

// PCDType is the format of a pcd file.
type PCDType int

const (
	// PCDAscii ascii format for pcd.
	PCDAscii PCDType = 0
	// PCDBinary binary format for pcd.
	PCDBinary PCDType = 1
	// PCDCompressed binary format for pcd.
	PCDCompressed PCDType = 2
)

func colorToPCDInt(pt Data) int {
	if pt == nil || !pt.HasColor() {
		return 255 << 16
	}

	r, g, b := pt.RGB255()
	return int(r)<<16 | int(g)<<8 | int(b)
}

func pcdIntToColor(c int) color.NRGBA {
	r := uint8(0xFF & (c >> 16))
	g := uint8(0xFF & (c >> 8))
	b := uint8(0xFF & (c >> 0))
	return color.NRGBA{r, g, b, 255}
}

// ToPCD writes the cloud as an unorganized PCD v0.7 file. PCD positions are in meters.
func ToPCD(cloud PointCloud, out io.Writer, outputType PCDType) error {
	w := bufio.NewWriter(out)
	hasColor := cloud.MetaData().HasColor

	if _, err := fmt.Fprintf(w, "VERSION .7\n"); err != nil {
		return err
	}
	var err error
	if hasColor {
		_, err = fmt.Fprintf(w, "FIELDS x y z rgb\n"+
			"SIZE 4 4 4 4\n"+
			"TYPE F F F I\n"+
			"COUNT 1 1 1 1\n")
	} else {
		_, err = fmt.Fprintf(w, "FIELDS x y z\n"+
			"SIZE 4 4 4\n"+
			"TYPE F F F\n"+
			"COUNT 1 1 1\n")
	}
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "WIDTH %d\n"+
		"HEIGHT %d\n"+
		"VIEWPOINT 0 0 0 1 0 0 0\n"+
		"POINTS %d\n",
		cloud.Size(),
		1,
		cloud.Size()); err != nil {
		return err
	}

	switch outputType {
	case PCDBinary:
		_, err = fmt.Fprintf(w, "DATA binary\n")
	case PCDAscii:
		_, err = fmt.Fprintf(w, "DATA ascii\n")
	default:
		return errors.Errorf("unsupported PCD output type %d", outputType)
	}
	if err != nil {
		return err
	}

	buf := make([]byte, 16)
	cloud.Iterate(0, 0, func(pos r3.Vector, d Data) bool {
		x := pos.X / 1000.
		y := pos.Y / 1000.
		z := pos.Z / 1000.
		switch outputType {
		case PCDBinary:
			binary.LittleEndian.PutUint32(buf, math.Float32bits(float32(x)))
			binary.LittleEndian.PutUint32(buf[4:], math.Float32bits(float32(y)))
			binary.LittleEndian.PutUint32(buf[8:], math.Float32bits(float32(z)))
			n := 12
			if hasColor {
				binary.LittleEndian.PutUint32(buf[12:], uint32(colorToPCDInt(d)))
				n = 16
			}
			_, err = w.Write(buf[:n])
		default:
			if hasColor {
				_, err = fmt.Fprintf(w, "%f %f %f %d\n", x, y, z, colorToPCDInt(d))
			} else {
				_, err = fmt.Fprintf(w, "%f %f %f\n", x, y, z)
			}
		}
		return err == nil
	})
	if err != nil {
		return err
	}
	return w.Flush()
}

type pcdFieldType int

const (
	pcdPointOnly  pcdFieldType = 3
	pcdPointColor pcdFieldType = 4
)

type pcdValType string

const (
	pcdValFloat pcdValType = "F"
	pcdValInt   pcdValType = "I"
	pcdValUInt  pcdValType = "U"
)

type pcdHeader struct {
	fields    pcdFieldType
	size      []uint64
	valTypes  []pcdValType
	count     []uint64
	width     uint64
	height    uint64
	viewpoint [7]float64
	points    uint64
	data      PCDType
}

const pcdCommentChar = "#"

var pcdHeaderFields = []string{"VERSION", "FIELDS", "SIZE", "TYPE", "COUNT", "WIDTH", "HEIGHT", "VIEWPOINT", "POINTS", "DATA"}

func parseUintList(name string, tokens []string, fields pcdFieldType) ([]uint64, error) {
	if len(tokens) != int(fields) {
		return nil, errors.Errorf("unexpected number of fields in %s line", name)
	}
	out := make([]uint64, len(tokens))
	for i, token := range tokens {
		v, err := strconv.ParseUint(token, 10, 64)
		if err != nil {
			return nil, errors.Errorf("invalid %s field %s", name, token)
		}
		out[i] = v
	}
	return out, nil
}

func parsePCDHeaderLine(line string, index int, header *pcdHeader) error {
	var err error
	name := pcdHeaderFields[index]
	field, value, _ := strings.Cut(line, " ")
	tokens := strings.Fields(value)
	if field != name {
		return errors.Errorf("line is supposed to start with %s but is %s", name, line)
	}

	switch name {
	case "VERSION":
		if value != ".7" && value != "0.7" {
			return errors.Errorf("unsupported pcd version %s", value)
		}
	case "FIELDS":
		switch value {
		case "x y z":
			header.fields = pcdPointOnly
		case "x y z rgb":
			header.fields = pcdPointColor
		default:
			return errors.Errorf("unsupported pcd fields %s", value)
		}
	case "SIZE":
		header.size, err = parseUintList(name, tokens, header.fields)
		if err != nil {
			return err
		}
		for _, s := range header.size {
			if s != 4 {
				return errors.Errorf("only 4 byte pcd fields are supported, got %d", s)
			}
		}
	case "TYPE":
		if len(tokens) != int(header.fields) {
			return errors.New("unexpected number of fields in TYPE line")
		}
		header.valTypes = make([]pcdValType, len(tokens))
		for i, token := range tokens {
			header.valTypes[i] = pcdValType(token)
		}
	case "COUNT":
		header.count, err = parseUintList(name, tokens, header.fields)
		if err != nil {
			return err
		}
	case "WIDTH":
		header.width, err = strconv.ParseUint(value, 10, 64)
		if err != nil {
			return errors.Wrapf(err, "invalid WIDTH field %s", value)
		}
	case "HEIGHT":
		header.height, err = strconv.ParseUint(value, 10, 64)
		if err != nil {
			return errors.Wrapf(err, "invalid HEIGHT field %s", value)
		}
	case "VIEWPOINT":
		if len(tokens) != 7 {
			return errors.Errorf("unexpected number of fields in VIEWPOINT line. Expected 7, got %d", len(tokens))
		}
		for i, token := range tokens {
			header.viewpoint[i], err = strconv.ParseFloat(token, 64)
			if err != nil {
				return errors.Wrapf(err, "invalid VIEWPOINT field %s", token)
			}
		}
	case "POINTS":
		points, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return errors.Wrapf(err, "invalid POINTS field %s", value)
		}
		if points != header.width*header.height {
			return errors.Errorf("POINTS field %d does not match WIDTH*HEIGHT %d", points, header.width*header.height)
		}
		header.points = points
	case "DATA":
		switch value {
		case "ascii":
			header.data = PCDAscii
		case "binary":
			header.data = PCDBinary
		case "binary_compressed":
			header.data = PCDCompressed
		default:
			return errors.Errorf("unknown pcd data type %s", value)
		}
	}

	return nil
}

// ReadPCD reads an ascii or binary PCD file written with x y z [rgb] fields.
func ReadPCD(inRaw io.Reader) (PointCloud, error) {
	header := pcdHeader{}
	in := bufio.NewReader(inRaw)
	headerLineCount := 0
	for headerLineCount < len(pcdHeaderFields) {
		line, err := in.ReadString('\n')
		if err != nil {
			return nil, errors.Wrapf(err, "error reading header line %d", headerLineCount)
		}
		line, _, _ = strings.Cut(line, pcdCommentChar)
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if err := parsePCDHeaderLine(line, headerLineCount, &header); err != nil {
			return nil, err
		}
		headerLineCount++
	}
	switch header.data {
	case PCDAscii:
		return readPCDAscii(in, header)
	case PCDBinary:
		return readPCDBinary(in, header)
	default:
		return nil, errors.New("compressed pcd not yet supported")
	}
}

func readPCDAscii(in *bufio.Reader, header pcdHeader) (PointCloud, error) {
	pc := NewWithPrealloc(int(header.points))
	for i := 0; i < int(header.points); i++ {
		line, err := in.ReadString('\n')
		if err != nil && !(errors.Is(err, io.EOF) && line != "") {
			return nil, err
		}
		tokens := strings.Fields(line)
		if len(tokens) != int(header.fields) {
			return nil, errors.Errorf("unexpected number of fields in point %d", i)
		}
		point := make([]float64, len(tokens))
		for j, token := range tokens {
			point[j], err = strconv.ParseFloat(token, 64)
			if err != nil {
				return nil, errors.Wrapf(err, "invalid point %d field %s", i, token)
			}
		}
		if err := setPCDPoint(pc, point, header); err != nil {
			return nil, err
		}
	}
	return pc, nil
}

func readPCDBinary(in *bufio.Reader, header pcdHeader) (PointCloud, error) {
	pc := NewWithPrealloc(int(header.points))
	buf := make([]byte, 4)
	for i := 0; i < int(header.points); i++ {
		point := make([]float64, int(header.fields))
		for j := range point {
			if _, err := io.ReadFull(in, buf); err != nil {
				return nil, errors.Wrapf(err, "reading point %d", i)
			}
			bits := binary.LittleEndian.Uint32(buf)
			switch header.valTypes[j] {
			case pcdValFloat:
				point[j] = float64(math.Float32frombits(bits))
			case pcdValInt:
				point[j] = float64(int32(bits))
			case pcdValUInt:
				point[j] = float64(bits)
			default:
				return nil, errors.Errorf("unsupported pcd value type %q", header.valTypes[j])
			}
		}
		if err := setPCDPoint(pc, point, header); err != nil {
			return nil, err
		}
	}
	return pc, nil
}

func setPCDPoint(pc PointCloud, slice []float64, header pcdHeader) error {
	// Round away the float32 noise of converting meters back to millimeters.
	pos := r3.Vector{
		X: math.Round(1000.*slice[0]*1000) / 1000,
		Y: math.Round(1000.*slice[1]*1000) / 1000,
		Z: math.Round(1000.*slice[2]*1000) / 1000,
	}
	switch header.fields {
	case pcdPointOnly:
		return pc.Set(pos, NewBasicData())
	case pcdPointColor:
		return pc.Set(pos, NewColoredData(pcdIntToColor(int(slice[3]))))
	default:
		return errors.Errorf("unsupported pcd field type %d", header.fields)
	}
}
