// Package calldata builds raw contract-call payloads without an ABI
// definition: a 4-byte selector taken from the keccak256 hash of a canonical
// function signature, followed by address parameters, each left-padded to a
// 32-byte word.
package calldata

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

const (
	SelectorLength = 4
	WordLength     = 32
)

// Selector returns the leading four bytes of keccak256(signature).
func Selector(signature string) [SelectorLength]byte {
	var out [SelectorLength]byte
	copy(out[:], crypto.Keccak256([]byte(signature))[:SelectorLength])
	return out
}

// Build encodes a call with exactly two address parameters. The result is
// always 68 bytes long.
func Build(signature string, first, second common.Address) []byte {
	return Encode(signature, first, second)
}

// Encode encodes a call with any number of address parameters in
// declaration order.
func Encode(signature string, params ...common.Address) []byte {
	selector := Selector(signature)
	out := make([]byte, 0, SelectorLength+WordLength*len(params))
	out = append(out, selector[:]...)
	for _, p := range params {
		out = append(out, common.LeftPadBytes(p.Bytes(), WordLength)...)
	}
	return out
}

// Hex returns the 0x-prefixed hex form of Build's output.
func Hex(signature string, first, second common.Address) string {
	return hexutil.Encode(Build(signature, first, second))
}
