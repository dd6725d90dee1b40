// Command dxconf inspects dxvk.conf configuration files and exercises the
// dxcore device over a noop GPU device.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
