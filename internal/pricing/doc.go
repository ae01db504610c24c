// Package pricing implements the constant-product quote formulas of the bonding curve.
//
// k = virtualTokenReserves * virtualSolReserves is recomputed for every quote in
// double-width arithmetic and the currency amount is divided by ScalingFactor.
// Rounding always favors the pool: a buy costs the ceiling of the reserve delta,
// a sell pays out its floor, and the stored virtual reserves are floored.
package pricing
