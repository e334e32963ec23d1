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

// Package config parses the server's command-line flags and optional JSON
// override file, grounded on kcptun's server/config.go + server/main.go
// flag wiring.
package config

import (
	"encoding/json"
	"os"

	"github.com/pkg/errors"
	"github.com/urfave/cli"
)

// Config holds everything cmd/bongo-server needs to stand up a listener and
// a worker pool.
type Config struct {
	Host           string `json:"host"`
	Port           int    `json:"port"`
	LogLevel       string `json:"loglevel"`
	ThreadsCount   int    `json:"threads"`
	NonInteractive bool   `json:"noninteractive"`
	Protocol       string `json:"protocol"`
}

// Validate reports whether config has a usable Host/Port pair.
func (c Config) Validate() error {
	if c.Port <= 0 {
		return errors.Errorf("config: port must be positive, got %d", c.Port)
	}
	if c.Host == "" {
		return errors.New("config: host must not be empty")
	}
	if c.ThreadsCount <= 0 {
		return errors.Errorf("config: threads must be positive, got %d", c.ThreadsCount)
	}
	return nil
}

func parseJSON(cfg *Config, path string) error {
	file, err := os.Open(path)
	if err != nil {
		return errors.Wrap(err, "config: open json file")
	}
	defer file.Close()

	if err := json.NewDecoder(file).Decode(cfg); err != nil {
		return errors.Wrap(err, "config: decode json file")
	}
	return nil
}

// Flags is the urfave/cli flag set cmd/bongo-server registers.
func Flags() []cli.Flag {
	return []cli.Flag{
		cli.StringFlag{
			Name:  "host",
			Value: "0.0.0.0",
			Usage: "address to listen on",
		},
		cli.IntFlag{
			Name:  "port,p",
			Value: 7000,
			Usage: "port to listen on",
		},
		cli.StringFlag{
			Name:  "loglevel",
			Value: "trace",
			Usage: "trace, warn, or error",
		},
		cli.IntFlag{
			Name:  "threads,t",
			Value: 4,
			Usage: "number of worker goroutines processing sessions",
		},
		cli.StringFlag{
			Name:  "protocol",
			Value: "echo",
			Usage: "demo protocol to serve: echo, fixedmirror, delimmirror, reqresp, httpish",
		},
		cli.BoolFlag{
			Name:  "non-interactive",
			Usage: "set the non-interactive flag in the config (bongo-server does not act on it)",
		},
		cli.StringFlag{
			Name:  "c",
			Value: "",
			Usage: "load configuration from a JSON file; fields it sets override the flag values",
		},
	}
}

// FromContext builds a Config from a populated cli.Context, applying a JSON
// override file if -c was given, mirroring kcptun's flag-then-JSON-override
// sequencing in server/main.go.
func FromContext(c *cli.Context) (Config, error) {
	cfg := Config{
		Host:           c.String("host"),
		Port:           c.Int("port"),
		LogLevel:       c.String("loglevel"),
		ThreadsCount:   c.Int("threads"),
		Protocol:       c.String("protocol"),
		NonInteractive: c.Bool("non-interactive"),
	}

	if path := c.String("c"); path != "" {
		if err := parseJSON(&cfg, path); err != nil {
			return Config{}, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
