// Package version provides build version information for flowkit and the
// engine version that module engine requirements are checked against.
//
// Version, git commit and build time are set at compile time via -ldflags:
//
//	go build -ldflags "-X github.com/kbukum/flowkit/version.Version=0.3.0"
package version
