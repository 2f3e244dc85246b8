//go:build !linux

package steamcontroller

func hidInterface(string) int {
	return -1
}
