// Package core provides the foundational domain types and collaborator
// contracts used by clinicmesh. It defines:
//
//   - Patients (identity records resolved during verification)
//   - Appointments (immutable ids plus a small status machine)
//   - Narrow repository interfaces for the relational store collaborator
//
// The package intentionally keeps implementation concerns (persistence,
// guardrail orchestration, transports) out of scope, exposing small
// interfaces so storage backends and higher layers stay decoupled.
package core
