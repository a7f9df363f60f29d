package cfg

import (
	"fmt"

	"github.com/wimfuse/wimfuse/internal/dentry"
	"github.com/wimfuse/wimfuse/internal/logging"
)

// StreamInterface is a pflag/viper-friendly wrapper around
// dentry.StreamInterface, validating its text form the way the teacher
// validates its own enum-like flag values (e.g. a severity or octal
// mode) through encoding.TextUnmarshaler.
type StreamInterface struct {
	Value dentry.StreamInterface
}

func (s StreamInterface) String() string {
	switch s.Value {
	case dentry.StreamInterfaceNone:
		return "none"
	case dentry.StreamInterfaceWindows:
		return "windows"
	default:
		return "xattr"
	}
}

func (s *StreamInterface) Set(text string) error {
	return s.UnmarshalText([]byte(text))
}

func (s StreamInterface) Type() string { return "streamInterface" }

func (s *StreamInterface) UnmarshalText(text []byte) error {
	switch string(text) {
	case "", "xattr":
		s.Value = dentry.StreamInterfaceXattr
	case "none":
		s.Value = dentry.StreamInterfaceNone
	case "windows":
		s.Value = dentry.StreamInterfaceWindows
	default:
		return fmt.Errorf("cfg: invalid stream-interface %q (want none, xattr, or windows)", text)
	}
	return nil
}

// LogFormat is a pflag/viper-friendly wrapper around logging.Format.
type LogFormat struct {
	Value logging.Format
}

func (f LogFormat) String() string {
	if f.Value == logging.FormatText {
		return "text"
	}
	return "json"
}

func (f *LogFormat) Set(text string) error {
	return f.UnmarshalText([]byte(text))
}

func (f LogFormat) Type() string { return "logFormat" }

func (f *LogFormat) UnmarshalText(text []byte) error {
	switch string(text) {
	case "", "json":
		f.Value = logging.FormatJSON
	case "text":
		f.Value = logging.FormatText
	default:
		return fmt.Errorf("cfg: invalid log-format %q (want json or text)", text)
	}
	return nil
}
