// Copyright 2020 Cosmos Nicolaou. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package goflate implements RFC 1951 DEFLATE compression and
// decompression and reading and writing of ZIP archives built from it.
package goflate
