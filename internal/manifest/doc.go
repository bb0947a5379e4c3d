// Package manifest describes the build manifests of the LiveBP plugin's two
// modules, LiveBPCore (runtime) and LiveBPEditor (editor).
//
// Each manifest exists in two drafts, variant A and variant B, that declare
// different public and private dependency sets. The table is embedded and
// can be queried by module and variant, compared across variants, and
// validated against a module registry: every declared dependency must
// resolve, appear once, and not be both public and private.
//
// Variant A is the one the hub reports as canonical since it resolves
// against the engine registry in full.
package manifest
