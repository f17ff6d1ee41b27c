// Package inspector defines the core types and interfaces shared across the
// Font Inspector subsystems: projects, inspections, font reports, and the
// contracts for stores, queues, fetchers, and supporting services.
package inspector
