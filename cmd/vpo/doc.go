// Command vpo is the media library orchestrator CLI: it enqueues scan,
// process, and prune jobs, inspects the queue, manages persisted plans,
// reports processing statistics, and hosts the background daemon.
package main
