// Package register registers all recording backends.
package register

import (
	// register backends.
	_ "github.com/rgbdkit/playback/recording/dirsession"
	_ "github.com/rgbdkit/playback/recording/mkv"
)
