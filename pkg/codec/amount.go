package codec

// DecompressAmount reverses the node's CompressAmount scheme used for
// amounts embedded in compressed UTXO/script records. Given x: 0 maps to
// 0; otherwise v = x-1, e = v mod 10, v //= 10. If e < 9: d = v mod 9 + 1,
// v //= 9, result = (v*10+d) * 10^e. Else result = (v+1) * 10^9.
func DecompressAmount(x uint64) uint64 {
	if x == 0 {
		return 0
	}
	v := x - 1
	e := v % 10
	v /= 10
	if e < 9 {
		d := v%9 + 1
		v /= 9
		return (v*10 + d) * pow10(e)
	}
	return (v + 1) * 1_000_000_000
}

func pow10(e uint64) uint64 {
	r := uint64(1)
	for i := uint64(0); i < e; i++ {
		r *= 10
	}
	return r
}
