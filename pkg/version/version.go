// Package version holds the build version, set with -ldflags.
package version

// Version is overridden at build time: -ldflags "-X github.com/MrARwho/project-uvm/pkg/version.Version=v1.2.3".
var Version = "dev"
