//go:build windows

package canon

import "golang.org/x/sys/windows"

// shortPathName returns the Windows 8.3 short form of path, used to index
// toolchain roots under both their long and short forms per spec §4.1.
func shortPathName(path string) (string, error) {
	p, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return "", err
	}
	buf := make([]uint16, 4)
	n, err := windows.GetShortPathName(p, &buf[0], uint32(len(buf)))
	if err != nil {
		return "", err
	}
	if int(n) > len(buf) {
		buf = make([]uint16, n)
		if _, err := windows.GetShortPathName(p, &buf[0], uint32(len(buf))); err != nil {
			return "", err
		}
	}
	return windows.UTF16ToString(buf), nil
}
