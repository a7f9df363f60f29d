package fs

import "os"

func writeWholeFile(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_WRONLY, 0o600)
	if err != nil {
		return wrapStagingIO(err)
	}
	_, writeErr := f.Write(data)
	return wrapCloseOrNil(f, writeErr)
}

func readWholeFile(path string) ([]byte, error) {
	return os.ReadFile(path)
}

func wrapCloseOrNil(f *os.File, writeErr error) error {
	closeErr := f.Close()
	if writeErr == nil && closeErr == nil {
		return nil
	}
	if writeErr != nil {
		return wrapStagingIO(writeErr)
	}
	return wrapStagingIO(closeErr)
}
