//go:build !unix

package daemon

import "errors"

func Detach(logFile string) (int, error) {
	return 0, errors.New("daemon mode is not supported on this platform")
}

func Prepare() {
	clearEnv()
}
