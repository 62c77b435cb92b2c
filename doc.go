// Package repositories is a client-side access layer over multi-model cloud storage: a partitioned
// table store, a document store, a blob store & a message queue. It offers uniform CRUD, query and batch
// transaction operations with a built-in retry policy and normalized error reporting.
//
// This package holds the pieces shared by every backend: the Response envelope returned by all operations,
// caller error codes, repository options (CreateResourcePolicy, RetryOptions), the retry helper and logging setup.
//
// The batch transaction staging buffer lives in package transaction, error classification in package azerrors,
// resource auto-provisioning in package provision. Concrete backends live in subpackages such as cassandra
// (table store), redis (queue & document store) and aws_s3 (blob store).
package repositories

// Timeout model
//
// Every single network call made by a repository runs under Retry, bounded by two timers:
//  1. The caller-provided context deadline/cancellation which propagates across subsystems.
//  2. RetryOptions.NetworkTimeout applied to each attempt.
//
// Batch submissions are not retried by this layer; a caller resubmits (the staged log is left intact) if desired.
