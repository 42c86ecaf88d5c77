package facecapture

import (
	"fmt"
	"os"
	"path/filepath"

	blendshape "github.com/JoaoVitorSantiagoNogueira/facecapture/blend_shape"
	"go.viam.com/rdk/pointcloud"
	"go.viam.com/rdk/spatialmath"
)

// ExportPose writes a pose to a PCD file in binary format, moved by offset when it is non-nil.
// Coincident points are stored once.
func ExportPose(pose blendshape.Pose, path string, offset spatialmath.Pose) error {
	var cloud pointcloud.PointCloud = pointcloud.NewBasicPointCloud(len(pose))
	for _, p := range pose {
		if err := cloud.Set(p, nil); err != nil {
			return fmt.Errorf("add point: %w", err)
		}
	}

	if offset != nil {
		moved := pointcloud.NewBasicPointCloud(cloud.Size())
		if err := pointcloud.ApplyOffset(cloud, offset, moved); err != nil {
			return fmt.Errorf("apply offset: %w", err)
		}
		cloud = moved
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create file: %w", err)
	}
	defer file.Close()

	if err := pointcloud.ToPCD(cloud, file, pointcloud.PCDBinary); err != nil {
		return fmt.Errorf("write PCD: %w", err)
	}
	return nil
}
