// Package seqnumは、データシーケンス番号(DSN)とサブフロー相対シーケンス番号の
// 折り返しを考慮した比較と演算を提供します。
package seqnum

// Valueは64bitのデータシーケンス番号です。
type Value uint64

// Sizeはシーケンス空間上の長さです。
type Size uint64

// LessThanは、vがwより前にあるかどうかを返却します。
func (v Value) LessThan(w Value) bool {
	return int64(v-w) < 0
}

// LessThanEqは、vがwより前、またはwと等しいかどうかを返却します。
func (v Value) LessThanEq(w Value) bool {
	return v == w || v.LessThan(w)
}

// GreaterThanは、vがwより後にあるかどうかを返却します。
func (v Value) GreaterThan(w Value) bool {
	return w.LessThan(v)
}

// GreaterThanEqは、vがwより後、またはwと等しいかどうかを返却します。
func (v Value) GreaterThanEq(w Value) bool {
	return w.LessThanEq(v)
}

// InRangeは、a <= v < b かどうかを返却します。
func (v Value) InRange(a, b Value) bool {
	return v.GreaterThanEq(a) && v.LessThan(b)
}

// Addは、vにsを加算した値を返却します。
func (v Value) Add(s Size) Value {
	return v + Value(s)
}

// Sizeは、vからwまでの長さを返却します。
func (v Value) Size(w Value) Size {
	return Size(w - v)
}

// High32は、上位32bitを返却します。
func (v Value) High32() uint32 {
	return uint32(v >> 32)
}

// Low32は、下位32bitを返却します。
func (v Value) Low32() uint32 {
	return uint32(v)
}

// Maxは、a, bのうち後にある方を返却します。
func Max(a, b Value) Value {
	if a.LessThan(b) {
		return b
	}
	return a
}

// Minは、a, bのうち前にある方を返却します。
func Min(a, b Value) Value {
	if a.LessThan(b) {
		return a
	}
	return b
}

// Expand32は、32bitで受信したDSNの下位ビットを、基準値baseに最も近い64bit値へ拡張します。
func Expand32(base Value, low uint32) Value {
	cand := Value(uint64(base.High32())<<32 | uint64(low))
	diff := int32(low - base.Low32())
	switch {
	case diff < 0 && cand.GreaterThan(base):
		cand -= 1 << 32
	case diff >= 0 && cand.LessThan(base):
		cand += 1 << 32
	}
	return cand
}

// Rel32は32bitのサブフロー相対シーケンス番号です。
type Rel32 uint32

// LessThanは、vがwより前にあるかどうかを返却します。
func (v Rel32) LessThan(w Rel32) bool {
	return int32(v-w) < 0
}

// LessThanEqは、vがwより前、またはwと等しいかどうかを返却します。
func (v Rel32) LessThanEq(w Rel32) bool {
	return v == w || v.LessThan(w)
}
