// Package domain defines the core business types for the lead pipeline.
//
// Types in this package are pure value objects with no behavior, no database
// dependencies, and no HTTP concerns. They are the shared language between
// the ingress API, the pipeline workers, and the persistence layer.
package domain
