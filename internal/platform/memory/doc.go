// Package memory provides an in-process task document store. It keeps no
// data across restarts and is meant for tests and single-run tooling.
package memory
