// Package main is the rgbdkit command.
package main

import (
	"os"

	"github.com/rgbdkit/playback/cli"
	// register recording backends.
	_ "github.com/rgbdkit/playback/recording/register"
)

func main() {
	os.Exit(cli.Run(os.Args, os.Stdout, os.Stderr))
}
