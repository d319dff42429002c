// Package container implements nbslot.Runtime on the Docker Engine API.
//
// # Overview
//
// Manager covers the runtime operations nbslot needs:
//
//   - Volumes: inspect, create with labels, force remove
//   - Containers: create and start under a fixed name, force remove, inspect
//   - Helpers: run a short-lived container to completion and collect its output
//   - Logs: follow a container's demultiplexed stdout and stderr
//
// # Graceful Degradation
//
// NewManager succeeds even when the daemon cannot be reached. Every operation
// dials lazily and fails with nbslot.ErrRuntimeUnavailable until the daemon
// answers, so a server can start before Docker does and report itself
// degraded in the meantime.
//
// # Example
//
//	m, err := container.NewManager(container.WithPull(false))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer m.Close()
//
//	if !m.IsAvailable(ctx) {
//	    log.Fatal("docker is not running")
//	}
//	slot := nbslot.NewSlot(m, nbslot.WithImage("jupyter/base-notebook"))
package container
