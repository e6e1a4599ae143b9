// Package merge runs merge jobs on a bounded pool of workers.
//
// A worker invokes the Backend with the group's paths in capture order,
// optionally verifies the output, and deletes the sources only after both
// steps succeed. Workers never touch the ledger: every outcome travels back to
// the coordinator as a Result on the pool's result channel.
package merge
