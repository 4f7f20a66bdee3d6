// Package postgres implements pipeline.Store using pgx/v5 with raw SQL.
// One row per run; phase results are kept in a JSON column so their key
// order follows execution order, and schema changes ship as embedded SQL
// migrations.
package postgres
