// Package config loads the daemon's JSON configuration file and fills
// in defaults for anything the operator left out. Chain cluster
// endpoints live in a separate YAML file referenced from here.
package config
