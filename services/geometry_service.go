package services

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/open-teleop/omnidrive/domain/kinematics"
	customlog "github.com/open-teleop/omnidrive/pkg/log"
)

// ErrInvalidGeometryFile is returned for geometry documents that are not valid YAML.
var ErrInvalidGeometryFile = errors.New("invalid geometry file")

// GeometryPublisher announces geometry changes. *zeromq.ConfigPublisher implements it.
type GeometryPublisher interface {
	PublishGeometryUpdated(version int, g kinematics.Geometry) error
}

// GeometryFile is the on-disk layout of the operational geometry file.
type GeometryFile struct {
	Version     int                 `yaml:"version" json:"version"`
	LastUpdated string              `yaml:"last_updated" json:"last_updated"`
	Geometry    kinematics.Geometry `yaml:"geometry" json:"geometry"`
}

// GeometryService owns the robot geometry used by the drive. It can be changed at
// runtime; every accepted change is written back to disk before it takes effect.
type GeometryService interface {
	LoadGeometry() error
	Geometry() kinematics.Geometry
	Current() GeometryFile
	GetGeometryYAML() ([]byte, error)
	UpdateGeometry(newGeometryYAML []byte) (GeometryFile, error)
	SetPublisher(p GeometryPublisher)
}

type geometryService struct {
	path      string
	logger    customlog.Logger
	publisher GeometryPublisher
	current   GeometryFile
	mu        sync.RWMutex
}

// NewGeometryService loads path. A missing or unreadable file leaves initial in
// place; the file is created on the first update.
func NewGeometryService(path string, initial kinematics.Geometry, logger customlog.Logger) (GeometryService, error) {
	if path == "" {
		return nil, fmt.Errorf("geometry file path cannot be empty")
	}
	if err := initial.Validate(); err != nil {
		return nil, err
	}

	s := &geometryService{
		path:    path,
		logger:  logger,
		current: GeometryFile{Geometry: initial},
	}

	if err := s.LoadGeometry(); err != nil {
		logger.Warnf("Initial load of geometry '%s' failed: %v. Using the configured geometry.", path, err)
		return s, nil
	}

	logger.Infof("GeometryService initialized from %s (version %d)", path, s.current.Version)
	return s, nil
}

// LoadGeometry reads the geometry file. On error the current geometry is kept.
func (s *geometryService) LoadGeometry() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.logger.Infof("Loading geometry from: %s", s.path)
	data, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("error reading geometry file '%s': %w", s.path, err)
	}

	file, err := parseGeometryFile(data)
	if err != nil {
		return fmt.Errorf("error in geometry file '%s': %w", s.path, err)
	}

	s.current = file
	return nil
}

func parseGeometryFile(data []byte) (GeometryFile, error) {
	var file GeometryFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return file, fmt.Errorf("%w: %v", ErrInvalidGeometryFile, err)
	}
	if err := file.Geometry.Validate(); err != nil {
		return file, err
	}
	return file, nil
}

// Geometry implements drive.GeometrySource.
func (s *geometryService) Geometry() kinematics.Geometry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.Geometry
}

func (s *geometryService) Current() GeometryFile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// GetGeometryYAML renders the geometry in effect, which may be the default when the
// file has never been written.
func (s *geometryService) GetGeometryYAML() ([]byte, error) {
	s.mu.RLock()
	current := s.current
	s.mu.RUnlock()

	data, err := yaml.Marshal(current)
	if err != nil {
		return nil, fmt.Errorf("error encoding geometry: %w", err)
	}
	return data, nil
}

// UpdateGeometry validates, persists and applies a new geometry, then notifies the
// publisher. The version is assigned here; any version in the input is ignored.
func (s *geometryService) UpdateGeometry(newGeometryYAML []byte) (GeometryFile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	file, err := parseGeometryFile(newGeometryYAML)
	if err != nil {
		s.logger.Errorf("Rejected geometry update: %v", err)
		return GeometryFile{}, err
	}
	file.Version = s.current.Version + 1
	file.LastUpdated = time.Now().UTC().Format(time.RFC3339)

	data, err := yaml.Marshal(file)
	if err != nil {
		return GeometryFile{}, fmt.Errorf("error encoding geometry: %w", err)
	}
	if err := s.persistUnlocked(data); err != nil {
		return GeometryFile{}, err
	}

	old := s.current.Version
	s.current = file
	s.logger.Infof("Geometry updated, version %d -> %d", old, file.Version)

	if s.publisher != nil {
		go func(p GeometryPublisher, f GeometryFile) {
			if err := p.PublishGeometryUpdated(f.Version, f.Geometry); err != nil {
				s.logger.Warnf("Failed to publish geometry update notification: %v", err)
			}
		}(s.publisher, file)
	}
	return file, nil
}

// persistUnlocked writes through a temporary file so a crash never leaves a
// truncated geometry behind.
func (s *geometryService) persistUnlocked(data []byte) error {
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("error writing geometry file '%s': %w", tmp, err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return errors.Join(
			fmt.Errorf("error replacing geometry file '%s': %w", s.path, err),
			os.Remove(tmp),
		)
	}
	s.logger.Debugf("Persisted geometry to %s", s.path)
	return nil
}

func (s *geometryService) SetPublisher(p GeometryPublisher) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.publisher = p
}
