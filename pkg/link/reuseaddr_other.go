//go:build !linux

package link

import "syscall"

// reuseAddrControl is a no-op on platforms other than Linux; the library
// this was ported from only exercises SO_REUSEADDR tuning there.
func reuseAddrControl(network, address string, c syscall.RawConn) error {
	return nil
}
