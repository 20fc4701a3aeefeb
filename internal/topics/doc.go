// Package topics defines the typed topics exchanged between the
// visualization tool, the AI process and the simulator.
package topics
