// Package persist writes received MQTT messages to files.
//
// Each message names its own file through the "filename" user property. The
// payload is written verbatim into the target directory, replacing any file
// of the same name. Persist is the bare operation; Handler wraps it with
// logging, acknowledgement and outcome reporting for the consumption loop.
package persist
