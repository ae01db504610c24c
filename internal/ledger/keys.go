package ledger

import (
	"encoding/binary"

	"github.com/gagliardetto/solana-go"
)

// Key layout
// 0x0/ [address]          -> GlobalConfig
// 0x1/ [address]          -> BondingCurve
// 0x2/ [owner]            -> lamport balance
// 0x3/ [mint] [owner]     -> token balance
// 0x4/ [mint]             -> AssetRecord
// 0x5/ [mint]             -> Metadata
// 0x6/ [address]          -> marker (existence only)
// 0x7/ [seq]              -> event log entry
const (
	configPrefix byte = iota
	curvePrefix
	lamportsPrefix
	tokenPrefix
	assetPrefix
	metadataPrefix
	markerPrefix
	eventPrefix
)

func addressKey(prefix byte, addr solana.PublicKey) []byte {
	k := make([]byte, 1+solana.PublicKeyLength)
	k[0] = prefix
	copy(k[1:], addr[:])
	return k
}

func ConfigKey(addr solana.PublicKey) []byte { return addressKey(configPrefix, addr) }
func CurveKey(addr solana.PublicKey) []byte { return addressKey(curvePrefix, addr) }
func LamportsKey(owner solana.PublicKey) []byte { return addressKey(lamportsPrefix, owner) }
func AssetKey(mint solana.PublicKey) []byte { return addressKey(assetPrefix, mint) }
func MetadataKey(mint solana.PublicKey) []byte { return addressKey(metadataPrefix, mint) }
func MarkerKey(addr solana.PublicKey) []byte { return addressKey(markerPrefix, addr) }

// TokenKey is [tokenPrefix] + [mint] + [owner].
func TokenKey(mint, owner solana.PublicKey) []byte {
	k := make([]byte, 1+2*solana.PublicKeyLength)
	k[0] = tokenPrefix
	copy(k[1:], mint[:])
	copy(k[1+solana.PublicKeyLength:], owner[:])
	return k
}

// EventKey is [eventPrefix] + big-endian sequence, so iteration follows append order.
func EventKey(seq uint64) []byte {
	k := make([]byte, 1+8)
	k[0] = eventPrefix
	binary.BigEndian.PutUint64(k[1:], seq)
	return k
}

func eventSeq(key []byte) uint64 {
	return binary.BigEndian.Uint64(key[1:])
}
