// Copyright 2018 Johan Lindh. All rights reserved.
// Use of this source code is governed by the MIT license, see the LICENSE file.

//go:build race

package rssl

// sanity check the configuration
func init() {
	if DefaultMaxFragmentSize < 2*socketFragHeaderExt {
		panic("DefaultMaxFragmentSize < 2*socketFragHeaderExt")
	}
	if DefaultMaxFragmentSize > SocketFrameMaxSize-SocketFrameHeaderSize-socketFragHeaderExt {
		panic("DefaultMaxFragmentSize > SocketFrameMaxSize-SocketFrameHeaderSize-socketFragHeaderExt")
	}
	if DefaultMaxOutputBuffers < 1 {
		panic("DefaultMaxOutputBuffers < 1")
	}
	if DefaultShmemMaxMsgSize < 1 {
		panic("DefaultShmemMaxMsgSize < 1")
	}
	if DefaultSeqMcastMaxMsgSize < 1 {
		panic("DefaultSeqMcastMaxMsgSize < 1")
	}
	if DefaultSeqMcastMaxMsgSize > SeqMcastMaxMsgSize {
		panic("DefaultSeqMcastMaxMsgSize > SeqMcastMaxMsgSize")
	}
	if PoolPreallocSize > freeListSize {
		panic("PoolPreallocSize > freeListSize")
	}
}
