package cmd

import (
	"os"
)

// CrashWriter appends daemonize.Run's crash output to a file, since the
// daemonized child has already detached from the parent's stdout/stderr
// by the time a mount failure would need to be reported.
type CrashWriter struct {
	fileName string
}

func (w *CrashWriter) Write(p []byte) (n int, err error) {
	f, err := os.OpenFile(w.fileName, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		return
	}
	defer f.Close()

	n, err = f.Write(p)

	return
}
