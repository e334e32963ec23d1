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

// Command bongo-client is a small interactive/one-shot client for exercising
// a running bongo-server, wired the same urfave/cli way as kcptun's
// client/main.go.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/urfave/cli"

	"github.com/michaelpopov/bongo/bongoclient"
	"github.com/michaelpopov/bongo/internal/blog"
)

var VERSION = "SELFBUILD"

func main() {
	app := cli.NewApp()
	app.Name = "bongo-client"
	app.Usage = "send one message to a bongo-server and print the reply"
	app.Version = VERSION
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "addr,a",
			Value: "127.0.0.1:7000",
			Usage: "server address to connect to",
		},
		cli.StringFlag{
			Name:  "protocol,p",
			Value: "echo",
			Usage: "wire protocol to speak: echo, fixedmirror, delimmirror",
		},
		cli.StringFlag{
			Name:  "message,m",
			Value: "hello",
			Usage: "message body to send",
		},
		cli.DurationFlag{
			Name:  "timeout",
			Value: 5 * time.Second,
			Usage: "connect/read/write deadline",
		},
	}
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		blog.Fatal("bongo-client: %v", err)
	}
}

func run(c *cli.Context) error {
	addr := c.String("addr")
	protocol := c.String("protocol")
	message := c.String("message")
	timeout := c.Duration("timeout")

	client, err := bongoclient.Dial(addr, timeout)
	if err != nil {
		return err
	}
	defer client.Close()

	if err := client.SetDeadline(time.Now().Add(timeout)); err != nil {
		return err
	}

	switch protocol {
	case "fixedmirror":
		if err := client.WriteFixed([]byte(message)); err != nil {
			return err
		}
		body, err := client.ReadFixed()
		if err != nil {
			return err
		}
		fmt.Println(string(body))

	case "delimmirror":
		if err := client.WriteDelimited([]byte(message)); err != nil {
			return err
		}
		body, err := client.ReadDelimited()
		if err != nil {
			return err
		}
		fmt.Println(string(body))

	default:
		if err := client.WriteLine(message); err != nil {
			return err
		}
		line, err := client.ReadLine()
		if err != nil {
			return err
		}
		fmt.Println(line)
	}

	return nil
}
