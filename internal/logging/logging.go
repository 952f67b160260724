package logging

import (
	"io"
	"log"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Setup points the standard logger at stderr and, when file is set, at a
// size-rotated log file as well. The returned closer releases the file.
func Setup(file string, maxSizeMB, maxBackups, maxAgeDays int) io.Closer {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	if file == "" {
		log.SetOutput(os.Stderr)
		return io.NopCloser(nil)
	}

	rotator := &lumberjack.Logger{
		Filename:   file,
		MaxSize:    maxSizeMB,
		MaxBackups: maxBackups,
		MaxAge:     maxAgeDays,
		Compress:   true,
	}
	log.SetOutput(io.MultiWriter(os.Stderr, rotator))
	return rotator
}
