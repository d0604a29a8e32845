// Package config holds the settings for the ASL alphabet classifier pipeline.
//
// Settings start from Default, may be overlaid by a YAML file through Load,
// and are finally overridden by command-line flags in main. Validate must be
// called before the configuration is used.
//
// # File Layout
//
// All artifacts live under ModelDir:
//
//	model/
//	  cnn-model.json             architecture and category names
//	  cnn-model.weights.gob.z    final weights
//	  checkpoints/cp.gob.z       weights after the latest epoch
//	  logs/fit/<timestamp>/      per-epoch history (CSV and PNG)
//	  confusion-<set>.png        confusion matrix figures
package config
