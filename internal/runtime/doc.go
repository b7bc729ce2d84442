// Package runtime defines the Executor contract for driving a container engine
// and the derived operations built once on top of it.
//
// Concrete executors differ only by transport; see runtime/docker for the
// local CLI implementation. Every helper in this package takes the Executor
// as an explicit parameter and keeps no state of its own; the only persistent
// state is the WhichCache owned by each executor.
package runtime
