//go:build andor

package main

import (
	"log"

	"github.com/nasa-jpl/andor3ctl/andor/sdk3"
	"github.com/nasa-jpl/andor3ctl/session"
)

func sdkOpener(idx int) (session.Opener, func(), error) {
	if err := sdk3.InitializeLibrary(); err != nil {
		return nil, nil, err
	}
	swver, err := sdk3.SoftwareVersion()
	if err == nil {
		log.Printf("andor SDK3 version %s", swver)
	}
	open := func() (session.Device, error) {
		c, err := sdk3.Discover(idx)
		if err != nil {
			return nil, err
		}
		return c, nil
	}
	return open, sdk3.FinalizeLibrary, nil
}
