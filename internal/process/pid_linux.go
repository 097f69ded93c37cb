//go:build linux

package process

import (
	"bytes"
	"os"
	"strconv"
)

// isZombie reports whether /proc shows pid in state Z. A zombie still answers
// signal 0 but will never serve requests.
func isZombie(pid int) bool {
	data, err := os.ReadFile("/proc/" + strconv.Itoa(pid) + "/stat")
	if err != nil {
		return false
	}
	// The command name may contain spaces and parentheses; the state field
	// follows the last ')'.
	i := bytes.LastIndexByte(data, ')')
	if i < 0 || i+2 >= len(data) {
		return false
	}
	return data[i+2] == 'Z'
}

// CmdlineContains reports whether any argument of pid contains needle. It is
// used to avoid signalling an unrelated process that reused a recorded pid.
// When /proc cannot be read the answer is false.
func CmdlineContains(pid int, needle string) bool {
	data, err := os.ReadFile("/proc/" + strconv.Itoa(pid) + "/cmdline")
	if err != nil {
		return false
	}
	for _, arg := range bytes.Split(data, []byte{0}) {
		if bytes.Contains(arg, []byte(needle)) {
			return true
		}
	}
	return false
}
