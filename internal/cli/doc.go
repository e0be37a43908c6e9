// Package cli implements the hap command line interface.
package cli
