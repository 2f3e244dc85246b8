package steamcontroller

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

var sysfsHidraw = "/sys/class/hidraw"

// hidInterface resolves /dev/hidrawN to the USB interface number it belongs to,
// or -1. The hidraw device links to the hid node whose parent is the interface.
func hidInterface(devPath string) int {
	node, err := filepath.EvalSymlinks(filepath.Join(sysfsHidraw, filepath.Base(devPath), "device"))
	if err != nil {
		return -1
	}
	raw, err := os.ReadFile(filepath.Join(filepath.Dir(node), "bInterfaceNumber"))
	if err != nil {
		return -1
	}
	n, err := strconv.ParseUint(strings.TrimSpace(string(raw)), 16, 8)
	if err != nil {
		return -1
	}
	return int(n)
}
