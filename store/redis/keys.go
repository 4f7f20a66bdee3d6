package redis

// Redis key naming conventions for pricing data.
// All keys are prefixed with "pricing:" to avoid collisions.

const keyPrefix = "pricing:"

// runKey returns the Hash key for a run entity: pricing:run:{id}
func runKey(id string) string { return keyPrefix + "run:" + id }

// phasesKey returns the Hash key holding a run's phase results keyed by
// phase name: pricing:run_phases:{id}
func phasesKey(id string) string { return keyPrefix + "run_phases:" + id }

// phaseOrderKey returns the List key recording phase execution order:
// pricing:run_phase_order:{id}
func phaseOrderKey(id string) string { return keyPrefix + "run_phase_order:" + id }

// runsByStartKey is the Sorted Set of run IDs scored by start time. Equal
// scores fall back to lexicographic ID order, which matches run ID order.
const runsByStartKey = keyPrefix + "runs_by_start"

// latestRunKey holds the ID of the run with the greatest start time:
// pricing:latest_run
const latestRunKey = keyPrefix + "latest_run"
