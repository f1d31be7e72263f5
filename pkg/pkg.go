// Copyright (C) 2017 ScyllaDB

package pkg

// version is set during build.
var version = "Snapshot"

// Version returns the application version.
func Version() string {
	return version
}
