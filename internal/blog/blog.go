// The MIT License (MIT)
//
// # Copyright (c) 2016 xtaci
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

// Package blog is the logging convention shared by every bongo package: plain
// stdlib log.Logger output, with warnings and fatal conditions highlighted the
// way xtaci/kcptun's server/main.go and client/main.go do it.
package blog

import (
	"log"
	"os"

	"github.com/fatih/color"
)

func init() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
}

// Trace logs a low-volume diagnostic line. It is the Go analogue of the
// original bongo::LOG_TRACE macro.
func Trace(format string, args ...interface{}) {
	log.Printf(format, args...)
}

// Warn logs a recoverable condition, highlighted in the terminal.
func Warn(format string, args ...interface{}) {
	log.Println(color.YellowString(format, args...))
}

// Error logs a handled failure (connection teardown, protocol error).
func Error(format string, args ...interface{}) {
	log.Println(color.RedString(format, args...))
}

// Fatal logs a catastrophic failure and exits the process, mirroring the
// original source's LOG_CRITICAL + abort path for readiness-facility errors.
func Fatal(format string, args ...interface{}) {
	log.Println(color.RedString(format, args...))
	os.Exit(1)
}
