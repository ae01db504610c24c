// Package curve holds the persistent data model of the bonding-curve market maker.
//
// It defines:
//   - GlobalConfig: the single protocol parameter record, and Params, the set accepted by setParams.
//   - BondingCurve: the per-asset reserve record with its lifecycle flag.
//   - AssetRecord and Metadata: the records kept for the external asset registry.
//   - The fixed-width record layout (8-byte discriminator followed by a borsh payload).
//   - Deterministic addressing of records from a namespace tag and the asset identity.
//   - The error taxonomy shared by every operation.
//
// Amounts are unsigned 64-bit integers in the smallest unit: lamports for the
// currency, raw units (6 decimals) for assets.
package curve
