// Package harness runs simulation scenarios and checks their outcome.
//
// A scenario names a starting world, the tuning to run it with, and what
// must hold afterwards. Every tick is journaled into an in-memory store and
// the trace is read back from it, so a scenario exercises the same
// persistence path as a journaled CLI run.
//
// # Scenario Format
//
// Scenarios are YAML files:
//
//	name: ping
//	description: "A broadcaster counts its listeners"
//	world: worlds/pair        # optional CUE world directory, relative to this file
//	tuning:                   # overlays config.Default()
//	  resolution: [100, 100]
//	  ticks: 3
//	global: { hits: 0 }       # merged into the world's global document
//	entities:                 # appended after the world's entities
//	  - { posX: 10, posY: 10, invokeSubscriptions: [ping] }
//	assertions:
//	  - type: value
//	    entity: 1
//	    key: posX
//	    expect: 130
//	  - type: count
//	    count: 3
//
// Unknown fields are rejected so typos fail loudly.
//
// # Assertion Types
//
//   - value: an entity document key equals expect, at the final tick or at tick
//   - global_value: a global document key equals expect, likewise
//   - tile: an entity is indexed in the given tile
//   - absent: an entity was deleted and is no longer indexed
//   - count: the number of indexed entities
//
// # Deterministic Testing
//
// Entity ids, tick numbers and the run id are fixed by the scenario, and
// entity documents serialize with sorted keys, so identical scenarios give
// byte-identical traces. RunWithGolden compares them against
// testdata/golden/{name}.golden.
package harness
