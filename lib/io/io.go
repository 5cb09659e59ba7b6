// Package iolib holds small io helpers shared by the transports.
package iolib

import "io"

// WriteFull writes all of buf to w, retrying short writes.
// A writer making no progress without reporting an error yields
// [io.ErrShortWrite].
func WriteFull(w io.Writer, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := w.Write(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
		if n == 0 {
			return total, io.ErrShortWrite
		}
	}
	return total, nil
}
