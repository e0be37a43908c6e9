// Package tool implements the in-image tooling that ships as every
// package's entrypoint: launching the application from its manifest,
// showing and exporting package contents, and printing the environment
// contract with secrets redacted.
package tool
