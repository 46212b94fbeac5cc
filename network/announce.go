// File: network/announce.go
package network

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// AnnouncementFile is written by the daemon into its working directory once
// it accepts connections.
const AnnouncementFile = "daemon.yaml"

// ProtocolVersion is the version of the launcher/daemon protocol spoken by
// this build.
const ProtocolVersion = "1.0.0"

// Announcement tells the launcher how to reach a daemon.
type Announcement struct {
	Port    int    `yaml:"port"`
	Pid     int    `yaml:"pid"`
	Version string `yaml:"version"`
}

// Announce writes a to dir. The file appears complete or not at all.
func Announce(dir string, a Announcement) error {
	data, err := yaml.Marshal(a)
	if err != nil {
		return errors.Wrap(err, "could not encode announcement")
	}
	tmp, err := os.CreateTemp(dir, AnnouncementFile+".*")
	if err != nil {
		return errors.Wrap(err, "could not create announcement")
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errors.Wrap(err, "could not write announcement")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "could not write announcement")
	}
	if err := os.Rename(tmp.Name(), filepath.Join(dir, AnnouncementFile)); err != nil {
		return errors.Wrap(err, "could not publish announcement")
	}
	return nil
}

// ReadAnnouncement reads the announcement in dir. It returns an error
// satisfying os.IsNotExist while the daemon has not announced itself.
func ReadAnnouncement(dir string) (Announcement, error) {
	data, err := os.ReadFile(filepath.Join(dir, AnnouncementFile))
	if err != nil {
		return Announcement{}, err
	}
	var a Announcement
	if err := yaml.Unmarshal(data, &a); err != nil {
		return Announcement{}, errors.Wrap(err, "could not decode announcement")
	}
	if a.Port <= 0 || a.Port > 65535 {
		return Announcement{}, errors.Errorf("announcement has invalid port %d", a.Port)
	}
	return a, nil
}
