// Package segment provides a DSN-ordered reassembly buffer for data arriving over multiple subflows.
package segment
