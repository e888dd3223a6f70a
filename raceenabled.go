// Copyright 2018 Johan Lindh. All rights reserved.
// Use of this source code is governed by the MIT license, see the LICENSE file.

//go:build race

package rssl

func init() {
	// the race detector slows the stress tests down a lot,
	// so they run fewer iterations.
	raceEnabled = true
}
