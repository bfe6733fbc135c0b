package domain

// domain package contains the Domain Models and failures for the knitfleet application.
//
// `domain/ENTITY.go` has high-level model types and functions.
// For example, `domain/instance.go` contains the `Instance` and results of instance queries.
//
// Components handling the models live in their own packages:
//
// - `lifecycle`: resolves which LifeCycles an instance operation is about.
//
// - `window`: resolves the time window of an instance operation from optional start/end.
//
// - `query`: filters, sorts and paginates instances returned by the execution backend.
//
// - `action`: dispatches schedule/suspend/resume/kill/rerun to the execution backend.
//
// - `summary`: composes per-entity instance summaries.
//
// - `instances`: the service composing all of the above. Entrypoints use it.
//
// # Entities
//
// - `entity`: Feed, Process or Cluster definition.
// Feed and Process are schedulable; their executions are instances.
// Cluster is where instances run, and it belongs to a colo.
// Entities are owned by the entity store (`store` package); instance operations only read them.
//
// - `instance`: one time-sliced execution of an entity on a cluster.
// Instances are owned by the execution backend (`backend` package) and read-only here.
//
// - `lifecycle`: tags classifying the operational aspect of an entity (execution, eviction, replication).
//
// - `window`: time range of instances to be queried or acted on.
//
// - `errors`: closed set of failures. Every operation error wraps one of them.
//
