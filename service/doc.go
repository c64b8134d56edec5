// Package service orchestrates the core components of the store:
// the RCU key/value map, the deferred-reclamation pipeline, the WAL,
// the reclamation journal, and the Kafka producers.
//
// It provides a clean API for writing, deleting, and querying keys,
// decoupled from network transports like gRPC.
package service
