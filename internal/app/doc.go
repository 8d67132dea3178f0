// Package app contains the core application logic: one build, clean or
// watch invocation over a project, decoupled from the CLI that starts it.
package app
