package services

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/open-teleop/omnidrive/domain/kinematics"
	"github.com/open-teleop/omnidrive/pkg/log"
)

const validGeometry = `
geometry:
  robot_radius: 0.1
  wheel_radius: 0.02
  wheel_from_center: 0.08
  wheel_angles: [120, 240, 0]
  wheel_axis_angles: [30, 150, 270]
`

type notification struct {
	version  int
	geometry kinematics.Geometry
}

type chanPublisher chan notification

func (c chanPublisher) PublishGeometryUpdated(version int, g kinematics.Geometry) error {
	c <- notification{version, g}
	return nil
}

func TestMissingFileUsesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "geometry.yaml")
	svc, err := NewGeometryService(path, kinematics.DefaultGeometry(), log.Discard())
	if err != nil {
		t.Fatal(err)
	}
	if svc.Geometry() != kinematics.DefaultGeometry() {
		t.Errorf("geometry = %+v, want default", svc.Geometry())
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("file should not be created until an update")
	}
}

func TestLoadExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "geometry.yaml")
	if err := os.WriteFile(path, []byte("version: 7\n"+validGeometry), 0644); err != nil {
		t.Fatal(err)
	}

	svc, err := NewGeometryService(path, kinematics.DefaultGeometry(), log.Discard())
	if err != nil {
		t.Fatal(err)
	}
	if got := svc.Current(); got.Version != 7 || got.Geometry.WheelRadius != 0.02 {
		t.Errorf("loaded %+v", got)
	}
}

func TestUpdateGeometryPersistsAndNotifies(t *testing.T) {
	path := filepath.Join(t.TempDir(), "geometry.yaml")
	svc, err := NewGeometryService(path, kinematics.DefaultGeometry(), log.Discard())
	if err != nil {
		t.Fatal(err)
	}
	pub := make(chanPublisher, 1)
	svc.SetPublisher(pub)

	file, err := svc.UpdateGeometry([]byte("version: 99\n" + validGeometry))
	if err != nil {
		t.Fatalf("UpdateGeometry failed: %v", err)
	}
	if file.Version != 1 {
		t.Errorf("version = %d, want 1", file.Version)
	}
	if svc.Geometry().WheelFromCenter != 0.08 {
		t.Errorf("geometry not applied: %+v", svc.Geometry())
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("geometry not persisted: %v", err)
	}
	var onDisk GeometryFile
	if err := yaml.Unmarshal(data, &onDisk); err != nil {
		t.Fatal(err)
	}
	if onDisk.Version != 1 || onDisk.Geometry != svc.Geometry() || onDisk.LastUpdated == "" {
		t.Errorf("persisted %+v", onDisk)
	}

	select {
	case n := <-pub:
		if n.version != 1 || n.geometry.WheelRadius != 0.02 {
			t.Errorf("notification %+v", n)
		}
	case <-time.After(time.Second):
		t.Fatal("no notification published")
	}
}

func TestUpdateGeometryRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "geometry.yaml")
	svc, err := NewGeometryService(path, kinematics.DefaultGeometry(), log.Discard())
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		yaml string
		want error
	}{
		{"zero wheel radius", "geometry:\n  wheel_radius: 0\n", kinematics.ErrInvalidGeometry},
		{"negative offset", "geometry:\n  wheel_radius: 0.02\n  wheel_from_center: -1\n", kinematics.ErrInvalidGeometry},
		{"wheel angles omitted", "geometry:\n  wheel_radius: 0.02\n  wheel_from_center: 0.051\n", kinematics.ErrInvalidGeometry},
		{"not yaml", "geometry: [", ErrInvalidGeometryFile},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.UpdateGeometry([]byte(tt.yaml))
			if err == nil {
				t.Fatal("update accepted")
			}
			if !errors.Is(err, tt.want) {
				t.Errorf("error = %v, want %v", err, tt.want)
			}
		})
	}

	if svc.Geometry() != kinematics.DefaultGeometry() {
		t.Errorf("rejected update changed the geometry")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("rejected update was persisted")
	}
}

func TestGetGeometryYAML(t *testing.T) {
	svc, err := NewGeometryService(filepath.Join(t.TempDir(), "g.yaml"), kinematics.DefaultGeometry(), log.Discard())
	if err != nil {
		t.Fatal(err)
	}
	data, err := svc.GetGeometryYAML()
	if err != nil {
		t.Fatal(err)
	}
	var file GeometryFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		t.Fatal(err)
	}
	if file.Geometry != kinematics.DefaultGeometry() {
		t.Errorf("YAML geometry = %+v", file.Geometry)
	}
}
