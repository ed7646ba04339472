// Cartographus - Media Server Analytics and Geographic Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cartographus

// Package partition implements the pure, deterministic function mapping
// an event key and a stream's partition count to the partition index that
// key's events must always land in. It is the sole source of key
// affinity (I3) and must never change behavior for a partition_count
// already in use by an existing stream.
package partition

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
)

// Of computes the partition index for key under partitionCount shards.
// The hash is SHA-256 over the UTF-8 bytes of key; the first four bytes
// of the digest are read as a big-endian uint32 and reduced modulo
// partitionCount. SHA-256 is used for its uniform distribution and
// stability across independent implementations, not for any
// cryptographic property.
func Of(key string, partitionCount uint32) (uint32, error) {
	if partitionCount == 0 {
		return 0, fmt.Errorf("partition: partition_count must be >= 1, got 0")
	}
	sum := sha256.Sum256([]byte(key))
	h := binary.BigEndian.Uint32(sum[:4])
	return h % partitionCount, nil
}
