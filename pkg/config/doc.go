// Package config loads flightprep configuration.
//
// Values come from, in increasing precedence: built-in defaults, a YAML
// file, and FLIGHTPREP_* environment variables (nested keys join with an
// underscore, so artifact.codec is FLIGHTPREP_ARTIFACT_CODEC). A .env file
// can seed the environment via LoadDotEnv.
//
// # Environment Variable Substitution
//
// ${VAR_NAME} references inside the YAML file are replaced with the value
// of the variable before parsing:
//
//	datasets_dir: ${DATA_ROOT}/flights
//	threshold: 50
//	artifact:
//	  codec: zstd
//	  level: better
//	log:
//	  level: info
//	  encoding: json
//
// Unset variables expand to the empty string.
package config
