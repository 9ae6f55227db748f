package pointcloud

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.viam.com/utils"
)

// Extensions of the point cloud files this package reads and writes.
const (
	ExtPLY = ".ply"
	ExtPCD = ".pcd"
)

// IsSupportedExtension reports whether ext names a point cloud file format.
func IsSupportedExtension(ext string) bool {
	switch strings.ToLower(ext) {
	case ExtPLY, ExtPCD:
		return true
	default:
		return false
	}
}

// NewFromFile returns a pointcloud read in from the given file.
func NewFromFile(fn string) (PointCloud, error) {
	//nolint:gosec
	f, err := os.Open(fn)
	if err != nil {
		return nil, err
	}
	defer utils.UncheckedErrorFunc(f.Close)

	switch strings.ToLower(filepath.Ext(fn)) {
	case ExtPLY:
		return ReadPLY(bufio.NewReader(f))
	case ExtPCD:
		return ReadPCD(f)
	default:
		return nil, errors.Errorf("do not know how to read file %q", fn)
	}
}

// WriteToFile writes the cloud to fn in the format named by its extension. binary selects the
// binary body encoding of either format.
func WriteToFile(cloud PointCloud, fn string, binary bool) (err error) {
	ext := strings.ToLower(filepath.Ext(fn))
	if !IsSupportedExtension(ext) {
		return errors.Errorf("do not know how to write file %q", fn)
	}

	//nolint:gosec
	f, err := os.Create(fn)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, f.Close())
	}()

	switch ext {
	case ExtPCD:
		pcdType := PCDAscii
		if binary {
			pcdType = PCDBinary
		}
		return ToPCD(cloud, f, pcdType)
	default:
		encoding := PLYAscii
		if binary {
			encoding = PLYBinary
		}
		return ToPLY(cloud, f, encoding)
	}
}
