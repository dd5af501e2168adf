// Package config loads animkit configuration from YAML or CUE.
//
// A configuration file holds the settings of one worker: the callback
// buffer, the directory of global assets, the command journal, script
// limits, an optional external server binary, and the telemetry settings.
// Missing sections keep the values of DefaultConfig. Environment variables
// in the file are expanded before parsing. A file ending in .cue is
// evaluated as CUE, checked against a schema and then decoded the same way.
//
//	worker:
//	  callback_buffer: 128
//	assets:
//	  dir: ./assets
//	  watch: true
//	journal:
//	  enabled: true
//	  path: ./animkit.db
//	telemetry:
//	  logging:
//	    level: debug
package config
