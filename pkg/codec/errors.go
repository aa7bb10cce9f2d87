// Package codec implements the stateless binary decoders shared by the
// block-index reader, block-file reader, and transaction parser: the
// node's block-index varint, the Bitcoin-family compact-size varint,
// script/amount decompression, and the hashing and address-encoding
// primitives built on top of them.
package codec

import "errors"

// ErrTruncatedInput is returned by every decoder in this package when the
// input slice is shorter than the value being decoded requires. Callers
// abandon the current transaction or block and continue with the next one.
var ErrTruncatedInput = errors.New("codec: truncated input")
