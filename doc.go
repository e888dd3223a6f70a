// Copyright 2018 Johan Lindh. All rights reserved.
// Use of this source code is governed by the MIT license, see the LICENSE file.

/*
Package rssl implements the RSSL transport layer.

A Session owns a Registry of transport backends, one per ConnectionType, and pools of Channel and Server objects. Initialize must be called before use and balanced by Uninitialize. The locking type given to the first Initialize decides whether the pools and each Channel are protected by mutexes.

A client obtains a Channel with Connect. A server obtains a Server with Bind and a Channel per peer with Accept. A Channel that is not blocking starts in the initializing state and must be driven with InitChannel until it becomes active.

Messages are written by requesting a Buffer with GetBuffer, filling in its Data and passing it to Write. A Buffer that will not be written is given back with ReleaseBuffer. Packed buffers carry several messages; each is closed with PackBuffer. Read returns the next message together with a RetCode that is positive while more data is pending.

The socket and WebSocket transports frame messages over a stream with a three byte header and split messages larger than the negotiated fragment size. The sequenced multicast transport sends one UDP datagram per write, prefixed with a header carrying an instance ID and a sequence number. The unidirectional shared memory transport carries messages from a single writer to any number of readers through a memory mapped ring of slots.

Ioctl with IoctlTrace writes XML comment traces of the traffic on a Channel to files and/or stdout. */
package rssl
