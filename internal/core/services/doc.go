// Package services implements the driving port interfaces.
// Services contain the core business logic: the change detector, the
// ingestion orchestrator and the background scheduler. They orchestrate
// calls to driven ports (adapters).
package services
