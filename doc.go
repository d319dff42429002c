// Package nbslot provisions a notebook server for each tool launch on a
// single container host.
//
// A launch is identified by a launch ID (one user working on one resource)
// and a resource ID (the shared assignment). nbslot:
//
//   - resolves a storage volume for the launch, creating it on first use
//   - seeds a new student volume from the resource's template volume
//   - evicts whatever occupies the single compute slot and starts a
//     notebook container bound to the volume
//   - waits for the container to print its access token
//
// # Volumes
//
// Build launches (instructors and administrators) bind the template volume,
// named after the resource. Student launches bind a private volume named
// after the launch ID. A student volume is cloned from the template exactly
// once, when it is created; returning students get their volume unchanged.
//
// # The slot
//
// Only one compute container runs at a time. It has a fixed name, and every
// launch removes the previous occupant before starting its own, whatever
// state that occupant is in. Launches are serialized so two launches never
// race on the slot.
//
// # Quick Start
//
//	rt, err := container.NewManager()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer rt.Close()
//
//	slot := nbslot.NewSlot(rt, nbslot.WithImage("nb"))
//	volumes := nbslot.NewVolumeStore(rt, nbslot.NewVolumeCloner(rt),
//	    nbslot.WithCloneHook(slot.EvictWriter))
//	launcher := nbslot.NewLauncher(volumes, slot, nbslot.NewTokenWatcher(rt))
//
//	url, err := launcher.Launch(ctx, nbslot.LaunchRequest{
//	    LaunchID:   launchID,
//	    ResourceID: "res1",
//	})
//
// # Errors
//
// Failures carry a kind (see Kind) so callers can tell a runtime outage from
// a failed clone or a notebook server that never printed its token.
package nbslot
