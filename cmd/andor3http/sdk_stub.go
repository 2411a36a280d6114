//go:build !andor

package main

import (
	"github.com/nasa-jpl/andor3ctl/andor/sdk3"
	"github.com/nasa-jpl/andor3ctl/session"
)

// sdkOpener without the andor build tag has no SDK to open; only Mock works
func sdkOpener(idx int) (session.Opener, func(), error) {
	return nil, nil, sdk3.ErrNoSDK
}
