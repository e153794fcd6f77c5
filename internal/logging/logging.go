package logging

import (
	"log"
	"os"
)

var (
	disabled = false
	verbose  = os.Getenv("WAYFARER_DEBUG") != ""
	logger   = log.New(os.Stdout, "", log.LstdFlags)
)

// Disable turns off all logging
func Disable() {
	disabled = true
}

// SetVerbose toggles debug output at runtime
func SetVerbose(on bool) {
	verbose = on
}

// Info logs an info message
func Info(v ...any) {
	if !disabled {
		logger.Println(v...)
	}
}

// Infof logs a formatted info message
func Infof(format string, v ...any) {
	if !disabled {
		logger.Printf(format, v...)
	}
}

// Error logs an error message
func Error(v ...any) {
	if !disabled {
		logger.Println(v...)
	}
}

// Errorf logs a formatted error message
func Errorf(format string, v ...any) {
	if !disabled {
		logger.Printf(format, v...)
	}
}

// Warn logs a warning message
func Warn(v ...any) {
	if !disabled {
		logger.Println(v...)
	}
}

// Warnf logs a formatted warning message
func Warnf(format string, v ...any) {
	if !disabled {
		logger.Printf(format, v...)
	}
}

// Debug logs a debug message when WAYFARER_DEBUG is set
func Debug(v ...any) {
	if !disabled && verbose {
		logger.Println(v...)
	}
}

// Debugf logs a formatted debug message when WAYFARER_DEBUG is set
func Debugf(format string, v ...any) {
	if !disabled && verbose {
		logger.Printf(format, v...)
	}
}
